package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-phongkham/internal/app"
	"github.com/noah-isme/backend-phongkham/internal/config"
	"github.com/noah-isme/backend-phongkham/internal/health"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/ratelimit"
	"github.com/noah-isme/backend-phongkham/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)
	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
		_, shutdownMeters, err := obs.InitMeterProvider(cfg.Obs.MetricsNamespace, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise meter provider")
		}
		defer func() {
			if err := shutdownMeters(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown meter provider")
			}
		}()
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "phongkham-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	deps, err := app.Open(ctx, cfg, logger, "phongkham-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()
	if deps.Redis == nil {
		logger.Warn().Msg("REDIS_URL not set: stats cache, idempotency keys and background tasks are disabled")
	}

	limiterStore, err := ratelimit.NewStore(deps.Redis, "phongkham:rl")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	voucherLimiter, err := ratelimit.New(limiterStore, cfg.VoucherRate)
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.VoucherRate).Msg("parse voucher validation rate")
	}

	inspector := newInspector(deps)
	if in, ok := inspector.(*asynq.Inspector); ok {
		defer in.Close()
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: newRouter(deps, routerOptions{
			Logger:         logger,
			HTTPMetrics:    httpMetrics,
			Telemetry:      tracingEnabled || cfg.Obs.MetricsEnabled,
			VoucherLimiter: voucherLimiter,
			Inspector:      inspector,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("store", cfg.DBDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, draining")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
	logger.Info().Msg("server stopped")
}
