package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, Prefix: "phongkham"}, mr
}

func TestTryWithLockReleasesAfterFailure(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()
	boom := errors.New("scan failed")

	err := locker.TryWithLock(ctx, "expiry-scan", time.Minute, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("phongkham:lock:expiry-scan"))

	ran := false
	require.NoError(t, locker.TryWithLock(ctx, "expiry-scan", time.Minute, func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}

func TestTryWithLockExpiresAbandonedKey(t *testing.T) {
	locker, mr := newLocker(t)
	require.NoError(t, mr.Set("phongkham:lock:expiry-scan", "other-worker"))
	mr.SetTTL("phongkham:lock:expiry-scan", time.Second)

	err := locker.TryWithLock(context.Background(), "expiry-scan", time.Minute, func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.True(t, mr.Exists("phongkham:lock:expiry-scan"))

	mr.FastForward(2 * time.Second)
	require.NoError(t, locker.TryWithLock(context.Background(), "expiry-scan", time.Minute, func(context.Context) error { return nil }))
}

func TestTryWithLockSkipsWhenHeld(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	err := locker.TryWithLock(ctx, "expiry-scan", time.Minute, func(ctx context.Context) error {
		require.True(t, mr.Exists("phongkham:lock:expiry-scan"))
		ran := false
		inner := locker.TryWithLock(ctx, "expiry-scan", time.Minute, func(context.Context) error {
			ran = true
			return nil
		})
		require.ErrorIs(t, inner, lock.ErrNotAcquired)
		require.False(t, ran)
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists("phongkham:lock:expiry-scan"))
}
