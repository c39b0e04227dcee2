package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/pending"
)

// initializePendingStore selects the pending-authorization backend.
// Redis keeps handshakes valid across instances; memory is fine for a
// single pod.
func initializePendingStore(
	cfg *config.Config,
	redisClient *redis.Client,
) (pending.Store, error) {
	switch cfg.PendingStoreBackend {
	case config.PendingStoreRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("pending store backend is redis but no redis client is configured")
		}
		store, err := pending.NewRedisStore(context.Background(), redisClient, cfg.PendingAuthTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis pending store: %w", err)
		}
		log.Printf("Pending authorization store: redis (ttl: %v)", cfg.PendingAuthTTL)
		return store, nil
	default:
		log.Printf(
			"Pending authorization store: memory (ttl: %v, single instance only)",
			cfg.PendingAuthTTL,
		)
		return pending.NewMemoryStore(cfg.PendingAuthTTL), nil
	}
}
