package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-phongkham/internal/app"
	"github.com/noah-isme/backend-phongkham/internal/config"
	"github.com/noah-isme/backend-phongkham/internal/lock"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("component", "worker").Str("env", cfg.AppEnv).Logger()

	if !cfg.RedisEnabled() {
		logger.Fatal().Msg("REDIS_URL is required for the worker")
	}
	if cfg.DBDriver == config.DriverMemory {
		logger.Warn().Msg("memory store is private to this process, the worker will not see API data")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "phongkham-worker",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	queue.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)
	if cfg.Obs.MetricsEnabled {
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

	deps, err := app.Open(ctx, cfg, logger, "phongkham-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	handlers := &queue.Handlers{
		Store:          deps.Store,
		Locker:         lock.Locker{R: deps.Redis, Prefix: "phongkham"},
		ExpiringWindow: cfg.ExpiringWindow,
		Log:            logger,
	}
	mux := asynq.NewServeMux()
	mux.Use(queue.MetricsMiddleware)
	handlers.Register(mux)

	srv := asynq.NewServer(deps.RedisOpt, asynq.Config{
		Concurrency:    cfg.WorkerConcurrency,
		Queues:         map[string]int{queue.QueueDefault: 1},
		RetryDelayFunc: queue.RetryDelay(cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		Logger:         asynqLogger{log: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	scheduler := asynq.NewScheduler(deps.RedisOpt, &asynq.SchedulerOpts{Logger: asynqLogger{log: logger}})
	if _, err := scheduler.Register(cfg.ExpiryScanCron, queue.NewExpiryScanTask()); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.ExpiryScanCron).Msg("register expiry scan")
	}

	var metricsSrv *http.Server
	if cfg.WorkerMetricsAddr != "" && cfg.Obs.MetricsEnabled {
		m := http.NewServeMux()
		m.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: m, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Str("expiry_cron", cfg.ExpiryScanCron).Msg("worker starting")

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	scheduler.Shutdown()
	srv.Shutdown()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
