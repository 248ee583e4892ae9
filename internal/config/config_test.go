package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DB_DRIVER":             "",
		"DATABASE_URL":          "",
		"REDIS_URL":             "",
		"KAFKA_BROKERS":         "",
		"PORT":                  "",
		"BODY_LIMIT_BYTES":      "",
		"VOUCHER_VALIDATE_RATE": "",
		"EXPIRING_WINDOW":       "",
		"WORKER_CONCURRENCY":    "",
		"MIGRATE_ON_START":      "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, DriverSQLite, cfg.DBDriver)
	require.Equal(t, ":4000", cfg.HTTPAddr())
	require.Equal(t, int64(10<<20), cfg.BodyLimitBytes)
	require.Equal(t, "30-M", cfg.VoucherRate)
	require.Equal(t, 720*time.Hour, cfg.ExpiringWindow)
	require.True(t, cfg.MigrateOnStart)
	require.False(t, cfg.RedisEnabled())
	require.Empty(t, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["DB_DRIVER"] = "Postgres"
	env["DATABASE_URL"] = "postgres://clinic@localhost/clinic"
	env["REDIS_URL"] = "redis://localhost:6379/0"
	env["KAFKA_BROKERS"] = "k1:9092, k2:9092,"
	env["PORT"] = ":9000"
	env["EXPIRING_WINDOW"] = "48h"
	env["MIGRATE_ON_START"] = "off"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, DriverPostgres, cfg.DBDriver)
	require.Equal(t, ":9000", cfg.HTTPAddr())
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 48*time.Hour, cfg.ExpiringWindow)
	require.False(t, cfg.MigrateOnStart)
	require.True(t, cfg.RedisEnabled())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without url": {"DB_DRIVER": "postgres"},
		"unknown driver":       {"DB_DRIVER": "mysql"},
		"zero body limit":      {"BODY_LIMIT_BYTES": "0"},
		"zero workers":         {"WORKER_CONCURRENCY": "0"},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			env := baseEnv()
			for k, v := range overrides {
				env[k] = v
			}
			_, err := LoadForTests(env)
			require.Error(t, err)
		})
	}
}

func TestParseDurationFallsBack(t *testing.T) {
	require.Equal(t, time.Minute, parseDuration("soon", "1m"))
	require.Equal(t, 2*time.Second, parseDuration(" 2s ", "1m"))
}
