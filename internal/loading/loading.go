package loading

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kjstillabower/weather-form/internal/observability"
)

// Mode selects how Begin/End map to broadcast values.
type Mode string

const (
	// ModeFlat broadcasts true on every Begin and false on every End. Two overlapping
	// requests clear the flag when the first one settles; callers that never overlap
	// requests (one form instance) are unaffected.
	ModeFlat Mode = "flat"
	// ModeCounted keeps an in-flight counter and only broadcasts on 0->1 and 1->0.
	ModeCounted Mode = "counted"
)

// ParseMode maps a config string to a Mode. Empty selects ModeFlat.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFlat:
		return ModeFlat, nil
	case ModeCounted:
		return ModeCounted, nil
	}
	return "", fmt.Errorf("loading mode must be flat or counted, got %q", s)
}

// Listener receives the loading flag on every transition.
type Listener func(loading bool)

type subscription struct {
	fn     Listener
	active atomic.Bool
}

// Broadcaster is a level-triggered loading signal with zero or more subscribers.
// Subscribers only observe transitions that happen after they subscribe.
type Broadcaster struct {
	mode Mode

	// deliverMu is held from the counter update through delivery, so listeners see
	// transitions in the order the counter made them. mu alone guards the fields.
	deliverMu sync.Mutex

	mu       sync.Mutex
	subs     []*subscription
	inFlight int
}

// New returns a Broadcaster in the given mode. An unknown mode falls back to ModeFlat.
func New(mode Mode) *Broadcaster {
	if mode != ModeCounted {
		mode = ModeFlat
	}
	return &Broadcaster{mode: mode}
}

// Mode returns the broadcaster's mode.
func (b *Broadcaster) Mode() Mode {
	return b.mode
}

// Subscribe registers fn and returns a function that removes this subscription.
// The returned function is idempotent. Once it returns, fn is not invoked again,
// including by a broadcast that is already iterating the subscriber list.
func (b *Broadcaster) Subscribe(fn Listener) (unsubscribe func()) {
	s := &subscription{fn: fn}
	s.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	observability.LoadingSubscribers.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			b.mu.Lock()
			for i, cur := range b.subs {
				if cur == s {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
			observability.LoadingSubscribers.Dec()
		})
	}
}

// Subscribers returns the current number of subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Begin marks the start of a request. Listeners must not call Begin or End.
func (b *Broadcaster) Begin() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	b.inFlight++
	notify := b.mode == ModeFlat || b.inFlight == 1
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	if notify {
		broadcast(snapshot, true)
	}
}

// End marks that a request settled, successfully or not.
func (b *Broadcaster) End() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	notify := b.mode == ModeFlat || b.inFlight == 0
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	if notify {
		broadcast(snapshot, false)
	}
}

// InFlight returns the number of requests between Begin and End.
func (b *Broadcaster) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

func (b *Broadcaster) snapshotLocked() []*subscription {
	out := make([]*subscription, len(b.subs))
	copy(out, b.subs)
	return out
}

// broadcast runs outside mu so listeners may subscribe or unsubscribe.
func broadcast(subs []*subscription, v bool) {
	observability.RecordLoadingTransition(v)
	for _, s := range subs {
		if s.active.Load() {
			s.fn(v)
		}
	}
}
