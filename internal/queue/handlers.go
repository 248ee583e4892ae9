package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-phongkham/internal/lock"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/store"
)

// DefaultExpiringWindow is how far ahead the expiry scan looks.
const DefaultExpiringWindow = 30 * 24 * time.Hour

// Locker runs fn only when no other worker holds name.
type Locker interface {
	TryWithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

// Handlers processes inventory tasks.
type Handlers struct {
	Store          store.Queries
	Locker         Locker
	ExpiringWindow time.Duration
	Now            func() time.Time
	Log            zerolog.Logger
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Register mounts the handlers on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeLowStockCheck, h.HandleLowStockCheck)
	mux.HandleFunc(TypeExpiryScan, h.HandleExpiryScan)
}

// HandleLowStockCheck logs every listed product at or below its minimum stock
// and refreshes the low stock gauge.
func (h *Handlers) HandleLowStockCheck(ctx context.Context, t *asynq.Task) error {
	var payload LowStockCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	for _, id := range payload.ProductIDs {
		p, err := h.Store.GetProduct(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if p.LowStock() {
			h.Log.Warn().
				Str("product_id", p.ID).
				Str("product_code", p.Code).
				Int("quantity", p.Quantity).
				Int("min_stock", p.MinStock).
				Str("invoice_id", payload.InvoiceID).
				Msg("product below minimum stock")
		}
	}
	low, err := h.Store.LowStockProducts(ctx)
	if err != nil {
		return err
	}
	obs.SetLowStock(len(low))
	return nil
}

// HandleExpiryScan reports medicine expiring inside the window. Only one
// worker scans at a time; the others skip the run.
func (h *Handlers) HandleExpiryScan(ctx context.Context, _ *asynq.Task) error {
	scan := func(ctx context.Context) error {
		window := h.ExpiringWindow
		if window <= 0 {
			window = DefaultExpiringWindow
		}
		now := h.now()
		products, err := h.Store.ExpiringProducts(ctx, now, now.Add(window))
		if err != nil {
			return err
		}
		for _, p := range products {
			h.Log.Warn().
				Str("product_id", p.ID).
				Str("product_code", p.Code).
				Time("expires_at", derefTime(p.ExpiresAt)).
				Int("quantity", p.Quantity).
				Msg("product expiring soon")
		}
		obs.SetExpiring(len(products))
		h.Log.Info().Int("expiring", len(products)).Dur("window", window).Msg("expiry scan finished")
		return nil
	}
	if h.Locker == nil {
		return scan(ctx)
	}
	err := h.Locker.TryWithLock(ctx, TypeExpiryScan, 2*time.Minute, scan)
	if errors.Is(err, lock.ErrNotAcquired) {
		h.Log.Debug().Msg("expiry scan already running elsewhere")
		return nil
	}
	return err
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

