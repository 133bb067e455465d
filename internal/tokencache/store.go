// Package tokencache caches short-lived provider credentials across requests.
//
// The Store interface keeps the cache injectable: a single-process deployment
// uses the in-memory store, a multi-instance deployment can share one
// credential through Redis.
package tokencache

import (
	"context"
	"sync"
	"time"
)

// Credential is an opaque bearer token with its validity window. It is always
// replaced wholesale on refresh, never partially updated.
type Credential struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the credential can still be used at the given time.
// The safety margin guards against the token expiring mid-request.
func (c Credential) Valid(now time.Time, margin time.Duration) bool {
	return c.Token != "" && now.Before(c.ExpiresAt.Add(-margin))
}

// Store holds at most one credential.
type Store interface {
	Get(ctx context.Context) (Credential, bool, error)
	Set(ctx context.Context, cred Credential) error
	Invalidate(ctx context.Context) error
}

// MemoryStore is a process-local Store. Safe for concurrent use; readers
// never observe a half-written credential because the value is replaced
// under the write lock.
type MemoryStore struct {
	mu   sync.RWMutex
	cred Credential
	set  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (Credential, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.set, nil
}

func (s *MemoryStore) Set(_ context.Context, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.set = true
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{}
	s.set = false
	return nil
}
