package cache

import (
	"context"
	"time"

	"github.com/guardian-dev/guardian/domain"
)

// SessionEntry is a cached "this session id has a live record of this type"
// fact. It spares the token authority a store round-trip on every verified
// request; revocation deletes through, so a cached entry can outlive the real
// record only up to the entry TTL cap.
type SessionEntry struct {
	SessionID string    `redis:"sessionId"`
	UserID    string    `redis:"userId"`
	Type      string    `redis:"type"`
	ExpiresAt time.Time `redis:"expiresAt"`
}

// MaxEntryTTL bounds how long a liveness fact may be served from cache.
const MaxEntryTTL = 30 * time.Second

// SessionStore caches session liveness keyed by (session id, token type).
type SessionStore interface {
	Set(ctx context.Context, entry *SessionEntry) error
	Get(ctx context.Context, sessionID string, typ domain.TokenType) (*SessionEntry, error)
	// Delete removes both the access and refresh entries for a session.
	Delete(ctx context.Context, sessionID string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) int
}

// EntryTTL clamps the remaining token lifetime to MaxEntryTTL.
func EntryTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl > MaxEntryTTL {
		ttl = MaxEntryTTL
	}
	return ttl
}
