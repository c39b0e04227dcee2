package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/middleware"
)

// initializeRedisClient creates the shared go-redis client. Returns nil
// when neither the pending store nor rate limiting uses Redis.
func initializeRedisClient(cfg *config.Config) (*redis.Client, error) {
	pendingNeedsRedis := cfg.PendingStoreBackend == config.PendingStoreRedis
	rateLimitNeedsRedis := cfg.RateLimitEnabled &&
		cfg.RateLimitStore == string(middleware.RateLimitStoreRedis)

	if !pendingNeedsRedis && !rateLimitNeedsRedis {
		return nil, nil //nolint:nilnil // redis client not needed in this configuration
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}

	log.Printf("Redis client initialized (address: %s, db: %d)", cfg.RedisAddr, cfg.RedisDB)
	return client, nil
}
