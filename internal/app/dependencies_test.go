package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/analytics"
	"github.com/noah-isme/backend-phongkham/internal/config"
	"github.com/noah-isme/backend-phongkham/internal/events"
	"github.com/noah-isme/backend-phongkham/internal/store/memory"
	"github.com/noah-isme/backend-phongkham/internal/store/sqlite"
)

func TestOpenWithoutRedis(t *testing.T) {
	cfg := &config.Config{DBDriver: config.DriverMemory}
	deps, err := Open(context.Background(), cfg, zerolog.Nop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	require.IsType(t, &memory.Store{}, deps.Store)
	require.Nil(t, deps.Redis)
	require.Nil(t, deps.Tasks)
	require.NotNil(t, deps.Validator)
	require.NotNil(t, deps.Meters)
	require.Empty(t, deps.Bus.Notifiers)
}

func TestOpenWithRedisSchedulesTasks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{DBDriver: config.DriverMemory, RedisURL: "redis://" + mr.Addr() + "/0"}
	deps, err := Open(context.Background(), cfg, zerolog.Nop(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	require.NotNil(t, deps.Redis)
	require.NotNil(t, deps.Tasks)
	require.Len(t, deps.Bus.Notifiers, 2)
	require.IsType(t, analytics.CacheInvalidator{}, deps.Bus.Notifiers[0])
	require.IsType(t, events.TaskNotifier{}, deps.Bus.Notifiers[1])
}

func TestOpenFailsOnUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	cfg := &config.Config{DBDriver: config.DriverMemory, RedisURL: "redis://" + addr + "/0"}
	_, err := Open(context.Background(), cfg, zerolog.Nop(), "test")
	require.ErrorContains(t, err, "ping redis")
}

func TestOpenStoreSQLite(t *testing.T) {
	st, err := OpenStore(context.Background(), &config.Config{DBDriver: config.DriverSQLite, SQLitePath: ":memory:"}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.IsType(t, &sqlite.Store{}, st)
	require.NoError(t, st.Ping(context.Background()))
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), &config.Config{DBDriver: "mysql"}, "test")
	require.Error(t, err)
}
