package pending

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_BeginConsume(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	state, verifier, err := s.Begin(ctx, "u1", "coinbase", "https://app/cb")
	require.NoError(t, err)
	assert.Len(t, state, 64) // 32 bytes hex-encoded
	assert.NotEmpty(t, verifier)

	auth, err := s.Consume(ctx, state)
	require.NoError(t, err)
	require.NotNil(t, auth)
	assert.Equal(t, "u1", auth.UserID)
	assert.Equal(t, "coinbase", auth.Provider)
	assert.Equal(t, verifier, auth.CodeVerifier)
	assert.Equal(t, "https://app/cb", auth.RedirectURI)
}

func TestMemoryStore_ConsumeIsSingleUse(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	state, _, err := s.Begin(ctx, "u1", "coinbase", "https://app/cb")
	require.NoError(t, err)

	first, err := s.Consume(ctx, state)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Replay must behave like an unknown state.
	second, err := s.Consume(ctx, state)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestMemoryStore_ConsumeUnknown(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()

	auth, err := s.Consume(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(50 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	state, _, err := s.Begin(ctx, "u1", "schwab", "https://app/cb")
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	auth, err := s.Consume(ctx, state)
	require.NoError(t, err)
	assert.Nil(t, auth)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_StatesAreUnique(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state, _, err := s.Begin(ctx, "u1", "coinbase", "https://app/cb")
		require.NoError(t, err)
		assert.False(t, seen[state])
		seen[state] = true
	}
}

func TestMemoryStore_ConcurrentConsume(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	state, _, err := s.Begin(ctx, "u1", "coinbase", "https://app/cb")
	require.NoError(t, err)

	const goroutines = 32
	var wg sync.WaitGroup
	results := make(chan *Authorization, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			auth, err := s.Consume(ctx, state)
			require.NoError(t, err)
			results <- auth
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for auth := range results {
		if auth != nil {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one caller may consume a state")
}

func setupRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := NewRedisStore(context.Background(), client, ttl)
	require.NoError(t, err)
	return s, mr
}

func TestRedisStore_BeginConsume(t *testing.T) {
	s, _ := setupRedisStore(t, time.Minute)
	ctx := context.Background()

	state, verifier, err := s.Begin(ctx, "u2", "schwab", "https://app/cb2")
	require.NoError(t, err)

	auth, err := s.Consume(ctx, state)
	require.NoError(t, err)
	require.NotNil(t, auth)
	assert.Equal(t, "u2", auth.UserID)
	assert.Equal(t, "schwab", auth.Provider)
	assert.Equal(t, verifier, auth.CodeVerifier)

	// Single use.
	again, err := s.Consume(ctx, state)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestRedisStore_Expiry(t *testing.T) {
	s, mr := setupRedisStore(t, time.Minute)
	ctx := context.Background()

	state, _, err := s.Begin(ctx, "u2", "schwab", "https://app/cb2")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	auth, err := s.Consume(ctx, state)
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestRedisStore_ConsumeUnknown(t *testing.T) {
	s, _ := setupRedisStore(t, time.Minute)

	auth, err := s.Consume(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.Nil(t, auth)
}
