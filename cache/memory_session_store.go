package cache

import (
	"context"
	"fmt"

	"github.com/jellydator/ttlcache/v3"

	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
)

// MemorySessionStore implements SessionStore using ttlcache.
type MemorySessionStore struct {
	cache *ttlcache.Cache[string, *SessionEntry]
}

// NewMemorySessionStore creates a new in-memory session store with automatic
// cleanup.
func NewMemorySessionStore() *MemorySessionStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *SessionEntry](),
	)
	go cache.Start()

	return &MemorySessionStore{cache: cache}
}

func entryKey(sessionID string, typ domain.TokenType) string {
	return fmt.Sprintf("%s:%s", sessionID, typ)
}

// Set implements SessionStore.Set.
func (s *MemorySessionStore) Set(_ context.Context, entry *SessionEntry) error {
	ttl := EntryTTL(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	s.cache.Set(entryKey(entry.SessionID, domain.TokenType(entry.Type)), entry, ttl)
	return nil
}

// Get implements SessionStore.Get.
func (s *MemorySessionStore) Get(_ context.Context, sessionID string, typ domain.TokenType) (*SessionEntry, error) {
	item := s.cache.Get(entryKey(sessionID, typ))
	if item == nil {
		return nil, serrors.ErrNotFound
	}
	return item.Value(), nil
}

// Delete removes both halves of a session from the cache.
func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.cache.Delete(entryKey(sessionID, domain.TokenTypeAccess))
	s.cache.Delete(entryKey(sessionID, domain.TokenTypeRefresh))
	return nil
}

// Clear removes all entries from the cache.
func (s *MemorySessionStore) Clear(_ context.Context) error {
	s.cache.DeleteAll()
	return nil
}

// Count returns the number of cached entries.
func (s *MemorySessionStore) Count(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemorySessionStore) Close() error {
	s.cache.Stop()
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
