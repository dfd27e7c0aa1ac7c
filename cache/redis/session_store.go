package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/guardian-dev/guardian/cache"
	"github.com/guardian-dev/guardian/domain"
	serrors "github.com/guardian-dev/guardian/errors"
)

// SessionStore implements the cache.SessionStore interface using Redis.
type SessionStore struct {
	client *redis.Client
	prefix string
}

// NewSessionStore creates a new [SessionStore] instance.
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix}
}

func (r *SessionStore) redisKey(sessionID string, typ domain.TokenType) string {
	return fmt.Sprintf("%s:session:%s:%s", r.prefix, sessionID, typ)
}

// Set stores a session liveness entry with a bounded TTL.
func (r *SessionStore) Set(ctx context.Context, entry *cache.SessionEntry) error {
	ttl := cache.EntryTTL(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	key := r.redisKey(entry.SessionID, domain.TokenType(entry.Type))
	fields := map[string]interface{}{
		"sessionId": entry.SessionID,
		"userId":    entry.UserID,
		"type":      entry.Type,
		"expiresAt": entry.ExpiresAt.Unix(),
	}
	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to set session entry in Redis: %w", err)
	}
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set expiry for session entry in Redis: %w", err)
	}
	return nil
}

// Get retrieves a session liveness entry.
func (r *SessionStore) Get(ctx context.Context, sessionID string, typ domain.TokenType) (*cache.SessionEntry, error) {
	res, err := r.client.HGetAll(ctx, r.redisKey(sessionID, typ)).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, serrors.ErrNotFound
	}

	entry := &cache.SessionEntry{
		SessionID: res["sessionId"],
		UserID:    res["userId"],
		Type:      res["type"],
	}
	if unix, parseErr := strconv.ParseInt(res["expiresAt"], 10, 64); parseErr == nil {
		entry.ExpiresAt = time.Unix(unix, 0)
	}
	return entry, nil
}

// Delete removes both halves of a session from Redis.
func (r *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx,
		r.redisKey(sessionID, domain.TokenTypeAccess),
		r.redisKey(sessionID, domain.TokenTypeRefresh),
	).Err()
}

// Clear removes all session entries under this store's prefix.
func (r *SessionStore) Clear(ctx context.Context) error {
	pattern := fmt.Sprintf("%s:session:*", r.prefix)
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Count returns the number of session entries under this store's prefix.
func (r *SessionStore) Count(ctx context.Context) int {
	pattern := fmt.Sprintf("%s:session:*", r.prefix)
	var count int
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return count
		}
		count += len(keys)
		if next == 0 {
			return count
		}
		cursor = next
	}
}

var _ cache.SessionStore = (*SessionStore)(nil)
