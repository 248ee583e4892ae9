// Package app builds the shared dependencies of the API and worker processes
// from configuration and releases them on shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/backend-phongkham/internal/analytics"
	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/config"
	"github.com/noah-isme/backend-phongkham/internal/events"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/resilience"
	"github.com/noah-isme/backend-phongkham/internal/store"
	"github.com/noah-isme/backend-phongkham/internal/store/memory"
	"github.com/noah-isme/backend-phongkham/internal/store/postgres"
	"github.com/noah-isme/backend-phongkham/internal/store/sqlite"
)

// Dependencies enumerates core services shared across modules.
type Dependencies struct {
	Config    *config.Config
	Log       zerolog.Logger
	Store     store.Store
	Redis     *redis.Client
	Validator *validator.Validate
	Tasks     *asynq.Client
	RedisOpt  asynq.RedisConnOpt
	Kafka     *events.KafkaNotifier
	Bus       *events.Bus
	Meters    metric.MeterProvider

	closers []func() error
}

// Open connects everything cfg enables. Redis and Kafka are optional; the
// store is not. On error the parts opened so far are closed.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger, appName string) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Log: log, Validator: common.NewValidator(), Meters: otel.GetMeterProvider()}

	st, err := OpenStore(ctx, cfg, appName)
	if err != nil {
		return nil, err
	}
	d.Store = st
	d.closers = append(d.closers, st.Close)

	if cfg.RedisEnabled() {
		if err := d.openRedis(ctx); err != nil {
			_ = d.Close()
			return nil, err
		}
	}

	notifiers := []events.Notifier{}
	if d.Redis != nil {
		notifiers = append(notifiers, analytics.CacheInvalidator{R: d.Redis})
	}
	if len(cfg.KafkaBrokers) > 0 {
		breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).WithLogger(log)
		kafka, err := events.DialKafka(cfg.KafkaBrokers, cfg.KafkaTopic, appName, breaker, log)
		if err != nil {
			// Events are best effort; the clinic keeps working without a broker.
			log.Error().Err(err).Strs("brokers", cfg.KafkaBrokers).Msg("connect kafka, events will not be streamed")
		} else {
			d.Kafka = kafka
			d.closers = append(d.closers, kafka.Close)
			notifiers = append(notifiers, kafka)
		}
	}
	if d.Tasks != nil {
		notifiers = append(notifiers, events.TaskNotifier{Client: d.Tasks})
	}
	d.Bus = &events.Bus{Notifiers: notifiers}
	return d, nil
}

func (d *Dependencies) openRedis(ctx context.Context) error {
	opts, err := redis.ParseURL(d.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if d.Config.Obs.TracingEnabled {
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			d.Log.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if d.Config.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(rdb, redisotel.WithMeterProvider(d.Meters)); err != nil {
			d.Log.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	d.closers = append(d.closers, rdb.Close)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	d.Redis = rdb

	connOpt, err := asynq.ParseRedisURI(d.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("parse asynq redis uri: %w", err)
	}
	d.RedisOpt = connOpt
	d.Tasks = asynq.NewClient(connOpt)
	d.closers = append(d.closers, d.Tasks.Close)
	return nil
}

// OpenStore selects the store implementation named by cfg.DBDriver, applying
// migrations and tracing hooks where the driver supports them.
func OpenStore(ctx context.Context, cfg *config.Config, appName string) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath, cfg.SQLiteDebug)
		if err != nil {
			return nil, err
		}
		if cfg.Obs.TracingEnabled {
			if err := obs.RegisterGormTracing(st.DB()); err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("register gorm tracing: %w", err)
			}
		}
		return st, nil
	case config.DriverPostgres:
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		pgCfg := postgres.Config{URL: cfg.DatabaseURL, ApplicationName: appName, MaxConns: cfg.DBMaxConns}
		if cfg.Obs.TracingEnabled {
			pgCfg.Tracer = obs.PGXTracer{}
		}
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return postgres.Connect(connectCtx, pgCfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.DBDriver)
	}
}

// Close releases every dependency in reverse order of opening.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
