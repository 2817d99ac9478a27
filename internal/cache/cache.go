// Package cache provides the process-wide TTL stores shared by concurrent
// bridge calls: bearer tokens (server-declared expiry) and resolved profile
// snapshots (fixed short window). Keys always include the realm so entries
// never cross a security-domain boundary.
package cache

import (
	"sync"
	"time"

	"vn.io.arda/idbridge/internal/domain"
)

// DefaultProfileTTL is the fixed snapshot lifetime, independent of any
// token's expiry.
const DefaultProfileTTL = time.Minute

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a concurrency-safe TTL map keyed by (realm, identifier).
// Reads evict expired entries; duplicate population of the same key under
// races is tolerated, corruption is not. No I/O ever happens under the lock.
type Store[V any] struct {
	mu sync.RWMutex
	m  map[string]entry[V]

	// Now is replaceable in tests.
	Now func() time.Time
}

// NewStore creates an empty Store.
func NewStore[V any]() *Store[V] {
	return &Store[V]{m: make(map[string]entry[V]), Now: time.Now}
}

func key(realm, id string) string { return realm + ":" + id }

// Put stores value under (realm, id) for ttl. A non-positive ttl stores
// nothing: an already-expired entry is indistinguishable from no entry.
func (s *Store[V]) Put(realm, id string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.m[key(realm, id)] = entry[V]{value: value, expiresAt: s.Now().Add(ttl)}
	s.mu.Unlock()
}

// Get returns the live value for (realm, id). Expired entries are evicted
// and reported as absent; expiry is re-checked on every read, never assumed.
func (s *Store[V]) Get(realm, id string) (V, bool) {
	k := key(realm, id)

	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if !s.Now().Before(e.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have
		// refreshed the entry.
		if cur, still := s.m[k]; still && !s.Now().Before(cur.expiresAt) {
			delete(s.m, k)
		}
		s.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Invalidate removes (realm, id) regardless of expiry.
func (s *Store[V]) Invalidate(realm, id string) {
	s.mu.Lock()
	delete(s.m, key(realm, id))
	s.mu.Unlock()
}

// Len reports the number of entries, live or not.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Token is an opaque bearer credential issued by the ERP's auth endpoint.
type Token struct {
	Value string
}

// TokenCache holds bearer tokens keyed by (realm, username); lifetime is the
// server-declared expiry from the credential exchange.
type TokenCache = Store[Token]

// ProfileCache holds resolved profile snapshots keyed by (realm, username);
// lifetime is a fixed short window (DefaultProfileTTL).
type ProfileCache = Store[*domain.User]

// NewTokenCache creates an empty token cache.
func NewTokenCache() *TokenCache { return NewStore[Token]() }

// NewProfileCache creates an empty profile cache.
func NewProfileCache() *ProfileCache { return NewStore[*domain.User]() }
