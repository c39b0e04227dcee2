package pending

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	auth      *Authorization
	expiresAt time.Time
	timer     *time.Timer
}

// MemoryStore keeps pending authorizations in process memory with
// per-entry timer eviction. Suitable for single-instance deployments;
// in-flight authorizations are lost on restart, which only fails those
// handshakes.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
}

// NewMemoryStore creates a memory-backed pending store. A non-positive
// ttl falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
	}
}

// Begin stores a new pending authorization keyed by a fresh state token.
func (s *MemoryStore) Begin(_ context.Context, userID, provider, redirectURI string) (string, string, error) {
	state, auth, err := newAuthorization(userID, provider, redirectURI)
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[state] = &memoryEntry{
		auth:      auth,
		expiresAt: time.Now().Add(s.ttl),
		timer:     time.AfterFunc(s.ttl, func() { s.evict(state) }),
	}

	return state, auth.CodeVerifier, nil
}

// Consume removes and returns the authorization for a state under one
// lock acquisition, so a replayed state races to a single winner.
func (s *MemoryStore) Consume(_ context.Context, state string) (*Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return nil, nil
	}

	delete(s.entries, state)
	entry.timer.Stop()

	// The eviction timer is not exact; reject anything past its window.
	if time.Now().After(entry.expiresAt) {
		return nil, nil
	}

	return entry.auth, nil
}

// Close drops all pending entries and stops their timers.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for state, entry := range s.entries {
		entry.timer.Stop()
		delete(s.entries, state)
	}
	return nil
}

// Len returns the number of unconsumed authorizations.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) evict(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, state)
}
