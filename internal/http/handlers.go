package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-form/internal/client"
	"github.com/kjstillabower/weather-form/internal/form"
	"github.com/kjstillabower/weather-form/internal/lifecycle"
	"github.com/kjstillabower/weather-form/internal/observability"
	"github.com/kjstillabower/weather-form/internal/session"
	"github.com/kjstillabower/weather-form/internal/validation"
)

// maxSelectionLength bounds posted country codes and city names (runes).
const maxSelectionLength = 200

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions   *session.Store
	cookieName string
	version    string
	logger     *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(sessions *session.Store, cookieName, version string, logger *zap.Logger) *Handler {
	if cookieName == "" {
		cookieName = "wf_session"
	}
	if version == "" {
		version = "dev"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions:   sessions,
		cookieName: cookieName,
		version:    version,
		logger:     logger,
	}
}

// GetIndex handles GET /. It renders the form of the caller's session, creating and
// initializing one on first visit.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	f, ok := h.formFor(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("render page", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// PostCountry handles POST /country with form field "country".
func (h *Handler) PostCountry(w http.ResponseWriter, r *http.Request) {
	f, ok := h.formFor(w, r)
	if !ok {
		return
	}
	code, err := validation.ValidateSelection(r.PostFormValue("country"), maxSelectionLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COUNTRY", err.Error())
		return
	}
	if err := f.SelectCountry(detach(r), code); err != nil {
		if errors.Is(err, form.ErrUnknownCountry) {
			writeError(w, r, http.StatusBadRequest, "INVALID_COUNTRY", err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Unable to update form")
		return
	}
	redirectHome(w, r)
}

// PostCity handles POST /city with form field "city".
func (h *Handler) PostCity(w http.ResponseWriter, r *http.Request) {
	f, ok := h.formFor(w, r)
	if !ok {
		return
	}
	name, err := validation.ValidateSelection(r.PostFormValue("city"), maxSelectionLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
		return
	}
	if err := f.SelectCity(name); err != nil {
		if errors.Is(err, form.ErrUnknownCity) {
			writeError(w, r, http.StatusBadRequest, "INVALID_CITY", err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Unable to update form")
		return
	}
	redirectHome(w, r)
}

// PostWeather handles POST /weather. Failures surface on the page, not as HTTP errors.
func (h *Handler) PostWeather(w http.ResponseWriter, r *http.Request) {
	f, ok := h.formFor(w, r)
	if !ok {
		return
	}
	f.Submit(detach(r))
	redirectHome(w, r)
}

// GetLoading handles GET /loading: a server-sent-events stream with one "loading" event
// (data "true" or "false") per transition of the session's loading flag. Past
// transitions are not replayed. The stream ends when the client disconnects or shutdown
// begins.
func (h *Handler) GetLoading(w http.ResponseWriter, r *http.Request) {
	f, ok := h.formFor(w, r)
	if !ok {
		return
	}

	// Only the latest value matters, so a slow reader sees the newest state rather
	// than a backlog.
	events := make(chan bool, 1)
	unsubscribe := f.Broadcaster().Subscribe(func(v bool) {
		for {
			select {
			case events <- v:
				return
			default:
				select {
				case <-events:
				default:
				}
			}
		}
	})
	defer unsubscribe()

	flusher := prepareSSE(w)
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	logger := observability.LoggerFromContext(r.Context(), h.logger)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-lifecycle.Draining():
			return
		case v := <-events:
			if err := writeEvent(w, flusher, "loading", strconv.FormatBool(v)); err != nil {
				logger.Debug("loading stream closed", zap.Error(err))
				return
			}
		}
	}
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if lifecycle.IsShuttingDown() {
		status, code = "shutting-down", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"service":   "weather-form",
		"version":   h.version,
		"sessions":  h.sessions.Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// formFor returns the form for the request's session cookie, creating and initializing a
// session when the cookie is missing or expired. On failure it writes the error response
// and returns false.
func (h *Handler) formFor(w http.ResponseWriter, r *http.Request) (*form.Form, bool) {
	if c, err := r.Cookie(h.cookieName); err == nil {
		if f, ok := h.sessions.Get(c.Value); ok {
			return f, true
		}
	}

	id, f, err := h.sessions.Create()
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("create session", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "SESSION_UNAVAILABLE", "Unable to start session")
		return nil, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	observability.LoggerFromContext(r.Context(), h.logger).Debug("session created", zap.String("session_id", id))
	f.Initialize(detach(r))
	return f, true
}

// detach keeps request values (correlation id, logger, trace span) but drops
// cancellation: a backend request outlives a browser that navigated away, and its
// result still lands in the form state.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value(client.CorrelationIDKey{}).(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
