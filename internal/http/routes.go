package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-form/internal/observability"
)

// NewRouter wires the page, form actions, loading stream, health and metrics endpoints.
// limiter applies per session to form actions only; nil disables rate limiting.
func NewRouter(h *Handler, logger *zap.Logger, limiter *SessionLimiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(TracingMiddleware)
	router.Use(MetricsMiddleware)

	router.HandleFunc("/", h.GetIndex).Methods(http.MethodGet)
	router.HandleFunc("/loading", h.GetLoading).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	actions := router.NewRoute().Subrouter()
	actions.Use(RateLimitMiddleware(limiter))
	actions.HandleFunc("/country", h.PostCountry).Methods(http.MethodPost)
	actions.HandleFunc("/city", h.PostCity).Methods(http.MethodPost)
	actions.HandleFunc("/weather", h.PostWeather).Methods(http.MethodPost)

	return router
}
