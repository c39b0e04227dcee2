package bootstrap

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/middleware"
)

// rateLimitMiddlewares holds rate limiting middlewares for different endpoints
type rateLimitMiddlewares struct {
	connect gin.HandlerFunc
}

// setupRateLimiting configures rate limiting middlewares based on configuration.
// Only the connect endpoint is limited: it writes pending authorizations
// and hits the provider, so it is the one worth protecting.
func setupRateLimiting(cfg *config.Config, redisClient *redis.Client) rateLimitMiddlewares {
	noOpMiddleware := func(c *gin.Context) { c.Next() }

	if !cfg.RateLimitEnabled {
		return rateLimitMiddlewares{connect: noOpMiddleware}
	}

	storeType := middleware.RateLimitStoreType(cfg.RateLimitStore)
	log.Printf("Rate limiting enabled (store: %s)", cfg.RateLimitStore)

	limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.ConnectRequestsPerMinute,
		StoreType:         storeType,
		RedisClient:       redisClient,
	})
	if err != nil {
		log.Fatalf("Failed to create connect rate limiter: %v", err)
	}

	return rateLimitMiddlewares{connect: limiter}
}
