package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-form/internal/client"
	"github.com/kjstillabower/weather-form/internal/config"
	"github.com/kjstillabower/weather-form/internal/form"
	httphandler "github.com/kjstillabower/weather-form/internal/http"
	"github.com/kjstillabower/weather-form/internal/lifecycle"
	"github.com/kjstillabower/weather-form/internal/loading"
	"github.com/kjstillabower/weather-form/internal/observability"
	"github.com/kjstillabower/weather-form/internal/session"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	shutdownTracing, err := observability.InitTracing(observability.ServiceName, version, cfg.ZipkinURL)
	if err != nil {
		logger.Fatal("tracing", zap.Error(err))
	}
	if cfg.ZipkinURL != "" {
		logger.Info("tracing enabled", zap.String("zipkin_url", cfg.ZipkinURL))
	}

	baseURL, err := client.ResolveBaseURL(cfg.APIBaseURL, cfg.APIOrigin)
	if err != nil {
		logger.Fatal("api base url", zap.Error(err))
	}
	logger.Info("backend configured",
		zap.String("base_url", baseURL),
		zap.Duration("timeout", cfg.APITimeout),
		zap.String("loading_mode", string(cfg.LoadingMode)))

	// Each session gets its own broadcaster and client, so loading is never shared
	// between browser tabs.
	newForm := func() (*form.Form, error) {
		b := loading.New(cfg.LoadingMode)
		c, err := client.NewAPIClient(baseURL, "", cfg.APITimeout, b)
		if err != nil {
			return nil, err
		}
		return form.New(c, b, logger), nil
	}
	store := session.NewStore(cfg.SessionTTL, newForm, logger)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		if err := store.SweepPeriodic(sweepCtx, cfg.SessionSweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session sweep stopped", zap.Error(err))
		}
	}()

	limiter := httphandler.NewSessionLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst, cfg.SessionTTL, cfg.SessionCookieName)
	handler := httphandler.NewHandler(store, cfg.SessionCookieName, version, logger)
	router := httphandler.NewRouter(handler, logger, limiter)

	// No WriteTimeout: loading streams stay open and backend calls may wait indefinitely.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight), zap.Int64("open_streams", httphandler.OpenStreams()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	stopSweep()
	store.CloseAll()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := observability.FlushTelemetry(flushCtx, logger, shutdownTracing); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
