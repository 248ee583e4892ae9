package analytics

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-phongkham/internal/events"
)

const cachePattern = "an:*"

// Invalidate drops every cached report. A nil client is a no-op.
func Invalidate(ctx context.Context, r *redis.Client) error {
	if r == nil {
		return nil
	}
	var keys []string
	iter := r.Scan(ctx, 0, cachePattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.Del(ctx, keys...).Err()
}

// CacheInvalidator clears cached reports after every committed invoice
// event, so revenue and unpaid counts never trail a sale or a payment.
type CacheInvalidator struct {
	R *redis.Client
}

// Notify implements events.Notifier.
func (c CacheInvalidator) Notify(ctx context.Context, _ events.Event) error {
	return Invalidate(ctx, c.R)
}
