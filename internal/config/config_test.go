package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("PGDATABASE_URL", "")
	t.Setenv("PGHOST", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDISHOST", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("ALERT_HISTORY_SIZE", "")
	t.Setenv("ALERT_NEAR_DELAY", "")
	t.Setenv("ALERT_BUCKET", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")
	t.Setenv("DB_CONN_MAX_LIFETIME", "")

	cfg := Load()

	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, StoreBackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 20, cfg.AlertHistorySize)
	assert.Equal(t, 5*time.Minute, cfg.AlertNearDelayWindow)
	assert.Equal(t, time.Minute, cfg.AlertBucket)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
}

func TestLoadFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("PGDATABASE_URL", "")
	t.Setenv("PGHOST", "db")
	t.Setenv("PGPORT", "5433")
	t.Setenv("PGUSER", "chef")
	t.Setenv("PGPASSWORD", "secret")
	t.Setenv("PGDATABASE", "kitchen")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDISHOST", "cache")
	t.Setenv("REDISPASSWORD", "")

	cfg := Load()

	assert.Equal(t, "postgres://chef:secret@db:5433/kitchen?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "MEMORY")
	t.Setenv("ALERT_HISTORY_SIZE", "50")
	t.Setenv("ALERT_NEAR_DELAY", "120")
	t.Setenv("ALERT_BUCKET", "30s")
	t.Setenv("ALERT_SOUND_MUTED", "true")
	t.Setenv("REDIS_SENTINEL_ADDRS", "a:26379, b:26379,")
	t.Setenv("DB_MAX_OPEN_CONNS", "4")
	t.Setenv("DB_CONN_MAX_LIFETIME", "10m")

	cfg := Load()

	assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
	assert.Equal(t, 50, cfg.AlertHistorySize)
	assert.Equal(t, 2*time.Minute, cfg.AlertNearDelayWindow)
	assert.Equal(t, 30*time.Second, cfg.AlertBucket)
	assert.True(t, cfg.AlertSoundMuted)
	assert.Equal(t, []string{"a:26379", "b:26379"}, cfg.RedisSentinelAddrs)
	assert.Equal(t, 4, cfg.DBMaxOpenConns)
	assert.Equal(t, 10*time.Minute, cfg.DBConnMaxLifetime)
}
