package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "STORE_BACKEND", "REDIS_URL", "REDIS_CONNSTRING", "SQLITE_PATH", "TOKEN_SECRET",
		"TOKEN_DURATION", "BCRYPT_COST", "LOG_LEVEL", "OTEL_EXPORTER_OTLP_ENDPOINT", "SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, 8000, cfg.ServerPort)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "", cfg.Redis.URL)
	assert.Equal(t, 24*time.Hour, cfg.TokenDuration)
	assert.Equal(t, bcrypt.DefaultCost, cfg.BcryptCost)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("REDIS_URL", "redis://:pw@cache:6380/2")
	t.Setenv("SQLITE_PATH", "/tmp/blog.db")
	t.Setenv("TOKEN_SECRET", "s3cr3t")
	t.Setenv("TOKEN_DURATION", "90m")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")
	t.Setenv("SHUTDOWN_TIMEOUT", "10s")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "redis://:pw@cache:6380/2", cfg.Redis.URL)
	assert.Equal(t, "/tmp/blog.db", cfg.SQLitePath)
	assert.Equal(t, "s3cr3t", cfg.TokenSecret)
	assert.Equal(t, 90*time.Minute, cfg.TokenDuration)
	assert.Equal(t, 4, cfg.BcryptCost)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "otel-collector:4317", cfg.OtelEndpoint)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("STORE_BACKEND", "cassandra")
	t.Setenv("TOKEN_DURATION", "a day")
	t.Setenv("BCRYPT_COST", "99")
	t.Setenv("LOG_LEVEL", "loud")

	cfg := LoadConfig()

	assert.Equal(t, 8000, cfg.ServerPort)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 24*time.Hour, cfg.TokenDuration)
	assert.Equal(t, bcrypt.DefaultCost, cfg.BcryptCost)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}
