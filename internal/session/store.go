package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-form/internal/form"
	"github.com/kjstillabower/weather-form/internal/observability"
)

// Factory builds a new, uninitialized form with its own broadcaster and client.
type Factory func() (*form.Form, error)

// Store maps session ids to forms. Entries idle longer than the TTL are removed by
// Sweep, which also closes the form so it stops observing loading.
type Store struct {
	ttl     time.Duration
	newForm Factory
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	form     *form.Form
	lastSeen time.Time
}

// NewStore returns an empty store. ttl <= 0 disables expiry.
func NewStore(ttl time.Duration, newForm Factory, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		ttl:      ttl,
		newForm:  newForm,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Create builds a form and registers it under a fresh session id.
func (s *Store) Create() (string, *form.Form, error) {
	f, err := s.newForm()
	if err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	id := uuid.New().String()

	s.mu.Lock()
	s.sessions[id] = &entry{form: f, lastSeen: s.now()}
	n := len(s.sessions)
	s.mu.Unlock()

	observability.SessionsActive.Set(float64(n))
	return id, f, nil
}

// Get returns the form for id and marks the session as used. Expired sessions that the
// sweep has not reached yet are reported missing.
func (s *Store) Get(id string) (*form.Form, bool) {
	if id == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.expired(e, now) {
		return nil, false
	}
	e.lastSeen = now
	return e.form, true
}

// Len returns the number of sessions held, expired ones included until swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes expired sessions, closes their forms, and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	var stale []*form.Form

	s.mu.Lock()
	for id, e := range s.sessions {
		if s.expired(e, now) {
			stale = append(stale, e.form)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, f := range stale {
		f.Close()
	}
	if len(stale) > 0 {
		observability.SessionsExpiredTotal.Add(float64(len(stale)))
		s.logger.Debug("expired sessions removed", zap.Int("removed", len(stale)), zap.Int("remaining", n))
	}
	observability.SessionsActive.Set(float64(n))
	return len(stale)
}

// SweepPeriodic runs Sweep at the given interval until ctx is done.
func (s *Store) SweepPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// CloseAll removes every session and closes its form. Call during shutdown.
func (s *Store) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range all {
		e.form.Close()
	}
	observability.SessionsActive.Set(0)
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastSeen) > s.ttl
}
