package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kjstillabower/weather-form/internal/loading"
	"github.com/kjstillabower/weather-form/internal/models"
	"github.com/kjstillabower/weather-form/internal/observability"
)

// BackendClient is what the form needs from the backend API.
type BackendClient interface {
	FetchCountries(ctx context.Context) ([]models.Country, error)
	FetchCities(ctx context.Context, countryCode string) ([]models.City, error)
	FetchWeather(ctx context.Context, cityName string) (models.Weather, error)
}

var (
	ErrInvalidBaseURL  = errors.New("invalid base URL")
	ErrNotFound        = errors.New("resource not found")
	ErrUpstreamFailure = errors.New("upstream failure")
)

// CorrelationIDKey is the request context key holding the inbound correlation id.
type CorrelationIDKey struct{}

// APIClient performs typed GETs against the backend and brackets every request with
// Begin/End on its loading broadcaster.
type APIClient struct {
	baseURL string
	client  *http.Client
	loading *loading.Broadcaster
	tracer  trace.Tracer
}

// NewAPIClient returns a client for baseURL. A relative baseURL (e.g. "/api") is resolved
// against origin. timeout <= 0 means requests wait for the backend indefinitely.
// broadcaster may be nil when nobody observes loading.
func NewAPIClient(baseURL, origin string, timeout time.Duration, broadcaster *loading.Broadcaster) (*APIClient, error) {
	resolved, err := ResolveBaseURL(baseURL, origin)
	if err != nil {
		return nil, err
	}
	if broadcaster == nil {
		broadcaster = loading.New(loading.ModeFlat)
	}
	httpClient := &http.Client{}
	if timeout > 0 {
		httpClient.Timeout = timeout
	}
	return &APIClient{
		baseURL: resolved,
		client:  httpClient,
		loading: broadcaster,
		tracer:  otel.GetTracerProvider().Tracer("weather-form/client"),
	}, nil
}

// ResolveBaseURL returns baseURL as an absolute URL without a trailing slash.
func ResolveBaseURL(baseURL, origin string) (string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = "/api"
	}
	ref, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if !ref.IsAbs() {
		base, err := url.Parse(strings.TrimSpace(origin))
		if err != nil || !base.IsAbs() || base.Host == "" {
			return "", fmt.Errorf("%w: relative base %q needs an absolute origin, got %q", ErrInvalidBaseURL, baseURL, origin)
		}
		ref = base.ResolveReference(ref)
	}
	if ref.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidBaseURL, baseURL)
	}
	return strings.TrimRight(ref.String(), "/"), nil
}

// BaseURL returns the resolved base URL.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// FetchCountries handles GET countries.
func (c *APIClient) FetchCountries(ctx context.Context) ([]models.Country, error) {
	var out []models.Country
	if err := c.get(ctx, "countries", "countries", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchCities handles GET countries/{code}/cities. The code is used verbatim.
func (c *APIClient) FetchCities(ctx context.Context, countryCode string) ([]models.City, error) {
	var out []models.City
	if err := c.get(ctx, "cities", "countries/"+countryCode+"/cities", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchWeather handles GET weather/{city} with the city escaped as a single path segment.
func (c *APIClient) FetchWeather(ctx context.Context, cityName string) (models.Weather, error) {
	var out models.Weather
	if err := c.get(ctx, "weather", "weather/"+url.PathEscape(cityName), &out); err != nil {
		return models.Weather{}, err
	}
	return out, nil
}

// get issues one request. Loading is signalled before dispatch and after the request
// settles, whatever the outcome.
func (c *APIClient) get(ctx context.Context, endpoint, path string, v interface{}) error {
	c.loading.Begin()
	defer c.loading.End()

	ctx, span := c.tracer.Start(ctx, "backend "+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	err := c.do(ctx, endpoint, path, v)
	if err != nil {
		category := CategorizeError(err)
		observability.BackendErrorsTotal.WithLabelValues(string(category)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(category))
	}
	return err
}

func (c *APIClient) do(ctx context.Context, endpoint, path string, v interface{}) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		observability.BackendCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID, ok := ctx.Value(CorrelationIDKey{}).(string); ok && corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.String()),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.BackendCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.BackendDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.BackendCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.BackendDuration.WithLabelValues(endpoint, status).Observe(duration)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w", ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusNotFound {
		return "not_found"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
