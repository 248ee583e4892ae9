package queue_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/lock"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/queue"
	"github.com/noah-isme/backend-phongkham/internal/store"
	"github.com/noah-isme/backend-phongkham/internal/store/memory"
	"github.com/noah-isme/backend-phongkham/internal/store/storetest"
)

type countingQueries struct {
	store.Queries
	expiringCalls int
}

func (c *countingQueries) ExpiringProducts(ctx context.Context, from, to time.Time) ([]domain.Product, error) {
	c.expiringCalls++
	return c.Queries.ExpiringProducts(ctx, from, to)
}

func init() {
	obs.MustRegisterDomainMetrics("phongkham_test", prometheus.NewRegistry())
}

func TestHandleLowStockCheckLogsLowProducts(t *testing.T) {
	s := memory.New()
	low := storetest.SeedProduct(t, s, "GK-LOW", 100_000, 3)
	storetest.SeedProduct(t, s, "GK-OK", 100_000, 50)

	var buf bytes.Buffer
	h := &queue.Handlers{Store: s, Log: zerolog.New(&buf)}
	task, err := queue.NewLowStockCheckTask("inv-1", []string{low.ID, "missing"})
	require.NoError(t, err)

	require.NoError(t, h.HandleLowStockCheck(context.Background(), task))
	require.Contains(t, buf.String(), `"product_code":"GK-LOW"`)
	require.NotContains(t, buf.String(), "GK-OK")
	require.Equal(t, float64(1), testutil.ToFloat64(obs.LowStockProducts))
}

func TestHandleLowStockCheckSkipsRetryOnBadPayload(t *testing.T) {
	h := &queue.Handlers{Store: memory.New(), Log: zerolog.Nop()}
	err := h.HandleLowStockCheck(context.Background(), asynq.NewTask(queue.TypeLowStockCheck, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleExpiryScanReportsWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := memory.New()
	soon := now.Add(10 * 24 * time.Hour)
	later := now.Add(90 * 24 * time.Hour)
	for code, exp := range map[string]time.Time{"TH-SOON": soon, "TH-LATER": later} {
		exp := exp
		_, err := s.CreateProduct(context.Background(), domain.Product{
			Code: code, Name: code, Category: domain.CategoryMedicine,
			Price: 50_000, Quantity: 10, MinStock: 2, ExpiresAt: &exp,
		})
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	h := &queue.Handlers{Store: s, Now: func() time.Time { return now }, Log: zerolog.New(&buf)}
	require.NoError(t, h.HandleExpiryScan(context.Background(), queue.NewExpiryScanTask()))
	require.Contains(t, buf.String(), "TH-SOON")
	require.NotContains(t, buf.String(), "TH-LATER")
	require.Equal(t, float64(1), testutil.ToFloat64(obs.ExpiringProducts))
}

func TestHandleExpiryScanSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set("phongkham:lock:"+queue.TypeExpiryScan, "other-worker"))

	q := &countingQueries{Queries: memory.New()}
	h := &queue.Handlers{
		Store:  q,
		Locker: lock.Locker{R: client, Prefix: "phongkham"},
		Log:    zerolog.Nop(),
	}
	require.NoError(t, h.HandleExpiryScan(context.Background(), queue.NewExpiryScanTask()))
	require.Zero(t, q.expiringCalls)

	mr.Del("phongkham:lock:" + queue.TypeExpiryScan)
	require.NoError(t, h.HandleExpiryScan(context.Background(), queue.NewExpiryScanTask()))
	require.Equal(t, 1, q.expiringCalls)
	require.False(t, mr.Exists("phongkham:lock:"+queue.TypeExpiryScan))
}

func TestNewLowStockCheckTaskOptions(t *testing.T) {
	task, err := queue.NewLowStockCheckTask("inv-7", []string{"p1"})
	require.NoError(t, err)
	require.Equal(t, queue.TypeLowStockCheck, task.Type())
	require.JSONEq(t, `{"invoiceId":"inv-7","productIds":["p1"]}`, string(task.Payload()))
}
