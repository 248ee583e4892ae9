package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-phongkham/internal/analytics"
	"github.com/noah-isme/backend-phongkham/internal/app"
	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/health"
	"github.com/noah-isme/backend-phongkham/internal/inventory"
	"github.com/noah-isme/backend-phongkham/internal/invoice"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/queue"
	"github.com/noah-isme/backend-phongkham/internal/ratelimit"
	"github.com/noah-isme/backend-phongkham/internal/security"
	"github.com/noah-isme/backend-phongkham/internal/voucher"
)

// routerOptions carries what newRouter needs beyond the shared dependencies.
type routerOptions struct {
	Logger         zerolog.Logger
	HTTPMetrics    *obs.HTTPMetrics
	Telemetry      bool
	VoucherLimiter *limiter.Limiter
	Inspector      queue.Inspector
}

func newRouter(deps *app.Dependencies, opts routerOptions) http.Handler {
	cfg := deps.Config
	logger := opts.Logger

	invoiceSvc := &invoice.Service{Store: deps.Store, Events: deps.Bus, Log: logger.With().Str("module", "invoice").Logger()}
	voucherSvc := &voucher.Service{Store: deps.Store, Log: logger.With().Str("module", "voucher").Logger()}
	inventorySvc := &inventory.Service{Store: deps.Store, Log: logger.With().Str("module", "inventory").Logger()}
	analyticsSvc := &analytics.Service{Q: deps.Store, R: deps.Redis, TTL: cfg.StatsCacheTTL}

	invoiceHandler := &invoice.Handler{Svc: invoiceSvc, Validate: deps.Validator}
	if deps.Redis != nil {
		invoiceHandler.Idempotency = common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}.Middleware
	}
	voucherHandler := &voucher.Handler{Svc: voucherSvc, Validate: deps.Validator}
	inventoryHandler := &inventory.Handler{Svc: inventorySvc, Validate: deps.Validator, ExpiringWindow: cfg.ExpiringWindow}
	analyticsHandler := &analytics.Handler{Svc: analyticsSvc, Log: logger}
	queueAdmin := &queue.AdminHandler{Inspector: opts.Inspector, Logger: logger}

	var validateLimit func(http.Handler) http.Handler
	if opts.VoucherLimiter != nil {
		validateLimit = ratelimit.Handler{
			Limiter: opts.VoucherLimiter,
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request") },
		}.Middleware
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Telemetry {
		r.Use(obs.Telemetry(nil, deps.Meters))
	}
	if opts.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"Idempotent-Replay", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if opts.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{DB: deps.Store, Redis: deps.Redis},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api", func(api chi.Router) {
		api.Route("/invoices", invoiceHandler.Routes)
		api.Route("/products", inventoryHandler.Routes)
		api.Route("/vouchers", func(v chi.Router) { voucherHandler.Routes(v, validateLimit) })
		api.Route("/stats", analyticsHandler.Routes)
		api.Route("/admin/queue", queueAdmin.Routes)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// newInspector returns nil when Redis is not configured; the admin endpoints
// then answer 503.
func newInspector(deps *app.Dependencies) queue.Inspector {
	if deps.RedisOpt == nil {
		return nil
	}
	return asynq.NewInspector(deps.RedisOpt)
}
