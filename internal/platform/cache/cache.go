// Package cache opens the Redis (or Dragonfly) connection that backs the
// redis learner store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/quizbot/internal/platform/config"
)

// Cache owns the Redis client and the key prefix every learner key is
// written under.
type Cache struct {
	Client *redis.Client
	Prefix string
}

// ClientOptions turns the QUIZ_CACHE_* settings into go-redis options.
func ClientOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis: QUIZ_CACHE_URL is not set")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	// WATCH transactions in the learner store are retried by the store itself.
	opts.MaxRetries = 1
	return opts, nil
}

// Open connects to Redis and checks the server answers.
func Open(ctx context.Context, cfg config.CacheConfig) (*Cache, error) {
	opts, err := ClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}

	return &Cache{Client: client, Prefix: cfg.KeyPrefix}, nil
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
