package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Storage backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Redis struct {
	URL  string // redis://[:password@]host:port[/db], takes precedence over Addr
	Addr string
}

type Config struct {
	ServerPort      int
	StoreBackend    string
	Redis           Redis
	SQLitePath      string
	TokenSecret     string
	TokenDuration   time.Duration
	BcryptCost      int
	LogLevel        slog.Level
	OtelEndpoint    string
	ShutdownTimeout time.Duration
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func parseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseBackend(value string) string {
	switch strings.ToLower(value) {
	case BackendSQLite:
		return BackendSQLite
	default:
		return BackendRedis
	}
}

func parseCost(value int) int {
	if value < bcrypt.MinCost || value > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return value
}

func LoadRedis() Redis {
	return Redis{
		URL:  getEnv("REDIS_URL", ""),
		Addr: getEnv("REDIS_CONNSTRING", "localhost:6379"),
	}
}

// LoadConfig reads the optional .env file and then the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using environment variables")
	}

	return &Config{
		ServerPort:      getEnvAsInt("PORT", 8000),
		StoreBackend:    parseBackend(getEnv("STORE_BACKEND", BackendRedis)),
		Redis:           LoadRedis(),
		SQLitePath:      getEnv("SQLITE_PATH", "./blog.db"),
		TokenSecret:     getEnv("TOKEN_SECRET", ""),
		TokenDuration:   getEnvAsDuration("TOKEN_DURATION", 24*time.Hour),
		BcryptCost:      parseCost(getEnvAsInt("BCRYPT_COST", bcrypt.DefaultCost)),
		LogLevel:        parseLevel(getEnv("LOG_LEVEL", "info")),
		OtelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}
