package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

const redisKeyPrefix = "pending_auth:"

// RedisStore keeps pending authorizations in Redis with native TTL.
// Required for multi-instance deployments, where the provider callback
// may land on a different instance than the one that issued the state.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed pending store and verifies the
// connection.
func NewRedisStore(ctx context.Context, client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("pending: redis connection failed: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// Begin stores a new pending authorization with the configured TTL.
func (s *RedisStore) Begin(ctx context.Context, userID, provider, redirectURI string) (string, string, error) {
	state, auth, err := newAuthorization(userID, provider, redirectURI)
	if err != nil {
		return "", "", err
	}

	payload, err := json.Marshal(auth)
	if err != nil {
		return "", "", fmt.Errorf("pending: marshal authorization: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+state, payload, s.ttl).Err(); err != nil {
		return "", "", fmt.Errorf("pending: store authorization: %w", err)
	}

	return state, auth.CodeVerifier, nil
}

// Consume retrieves and deletes the authorization in a single GETDEL, so
// at-most-once semantics hold across instances.
func (s *RedisStore) Consume(ctx context.Context, state string) (*Authorization, error) {
	payload, err := s.client.GetDel(ctx, redisKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending: consume authorization: %w", err)
	}

	var auth Authorization
	if err := json.Unmarshal([]byte(payload), &auth); err != nil {
		return nil, fmt.Errorf("pending: unmarshal authorization: %w", err)
	}
	return &auth, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
