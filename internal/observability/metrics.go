package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Form actions include the backend round trip.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight, SSE streams included.
	HTTPRequestsInFlight prometheus.Gauge

	// Backend API call rate by endpoint. Watch for: error vs success ratio.
	BackendCallsTotal *prometheus.CounterVec

	// Backend latency per call. Requests have no deadline unless api.timeout is set, so watch the tail.
	BackendDuration *prometheus.HistogramVec

	// Backend failures by category (not_found, upstream_5xx, network, ...).
	BackendErrorsTotal *prometheus.CounterVec

	// Loading broadcasts by value. true minus false counts unmatched Begin calls.
	LoadingTransitionsTotal *prometheus.CounterVec

	// Live loading subscriptions across all forms (form views plus SSE streams).
	LoadingSubscribers prometheus.Gauge

	// User-facing form errors by kind.
	FormErrorsTotal *prometheus.CounterVec

	// Weather lookups submitted from forms.
	WeatherLookupsTotal prometheus.Counter

	// Sessions currently held in the store.
	SessionsActive prometheus.Gauge

	// Sessions removed by the idle sweep.
	SessionsExpiredTotal prometheus.Counter

	// Rate limit denials on form actions. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	BackendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendCallsTotal",
			Help: "Total number of backend API calls",
		},
		[]string{"endpoint", "status"},
	)
	BackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backendDurationSeconds",
			Help:    "Backend API latency in seconds (per call)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status"},
	)
	BackendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendErrorsTotal",
			Help: "Backend API failures by category",
		},
		[]string{"category"},
	)
	LoadingTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadingTransitionsTotal",
			Help: "Loading flag broadcasts by value",
		},
		[]string{"loading"},
	)
	LoadingSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loadingSubscribers",
			Help: "Current number of loading subscriptions",
		},
	)
	FormErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formErrorsTotal",
			Help: "User-facing form errors by kind",
		},
		[]string{"kind"},
	)
	WeatherLookupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherLookupsTotal",
			Help: "Total number of weather lookups submitted",
		},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessionsActive",
			Help: "Number of form sessions held in memory",
		},
	)
	SessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessionsExpiredTotal",
			Help: "Total number of sessions removed after idling past the TTL",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		BackendCallsTotal, BackendDuration, BackendErrorsTotal,
		LoadingTransitionsTotal, LoadingSubscribers,
		FormErrorsTotal, WeatherLookupsTotal,
		SessionsActive, SessionsExpiredTotal,
		RateLimitDeniedTotal,
	)
}

// RecordLoadingTransition counts one loading broadcast.
func RecordLoadingTransition(loading bool) {
	LoadingTransitionsTotal.WithLabelValues(strconv.FormatBool(loading)).Inc()
}

// RecordFormError counts one user-facing form error of the given kind.
func RecordFormError(kind string) {
	FormErrorsTotal.WithLabelValues(kind).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
