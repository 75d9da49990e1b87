package db

import (
	"context"
	"fmt"

	"ctchen222/blog-web-api/internal/config"

	"github.com/go-redis/redis/v8"
)

// RedisOptions builds client options from the configuration. A REDIS_URL
// takes precedence over the plain address.
func RedisOptions(cfg config.Redis) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opts, nil
	}

	return &redis.Options{
		Addr: cfg.Addr,
	}, nil
}

// NewRedisClient creates and returns a new Redis client.
func NewRedisClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	// Ping the server to ensure the connection is established.
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}

	return client, nil
}
