// This file implements a Redis read-through cache in front of the
// login_sessions table. SessionAuth extracts a session on every request, so
// a Postgres round trip per request would be wasteful; the database stays
// the source of truth, the cache is best-effort and safe to disable.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/cache"
	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// SessionStore is the Redis-backed cache layer for UserSession lookups.
type SessionStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewSessionStore creates a session cache bound to the shared Redis client.
// ttl bounds how long a cached entry can outlive a refresh to the session's
// own expires_at.
func NewSessionStore(c *cache.Cache, ttl time.Duration) *SessionStore {
	return &SessionStore{cache: c, ttl: ttl}
}

// GetSession retrieves a cached session. ok is false on a cache miss, a
// disabled cache, or a cached row whose expiry has since passed; any of
// these sends the caller back to the database.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (session *models.UserSession, ok bool) {
	if !s.IsEnabled() {
		return nil, false
	}

	var cached models.UserSession
	if err := s.cache.Get(ctx, s.sessionKey(sessionID), &cached); err != nil {
		return nil, false
	}
	if cached.Expired(time.Now()) {
		return nil, false
	}
	return &cached, true
}

// PutSession stores or refreshes a cached session, expiring it no later
// than the session's own expires_at.
func (s *SessionStore) PutSession(ctx context.Context, session *models.UserSession) error {
	if !s.IsEnabled() {
		return nil
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return s.DeleteSession(ctx, session.ID)
	}
	if ttl > s.ttl {
		ttl = s.ttl
	}
	return s.cache.Set(ctx, s.sessionKey(session.ID), session, ttl)
}

// DeleteSession evicts a single cached session (logout, revocation).
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	if !s.IsEnabled() {
		return nil
	}
	return s.cache.Delete(ctx, s.sessionKey(sessionID))
}

// DeleteUserSessions evicts every cached session for a user. The cache has
// no secondary index by user id, so this relies on the caller (which has
// just deleted the rows from Postgres) to pass the exact set of ids; an
// empty set evicts nothing (ClearAll is the full session-namespace flush).
func (s *SessionStore) DeleteUserSessions(ctx context.Context, sessionIDs []string) error {
	if !s.IsEnabled() || len(sessionIDs) == 0 {
		return nil
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = s.sessionKey(id)
	}
	return s.cache.Delete(ctx, keys...)
}

// ClearAll evicts every cached session, forcing each one to be re-validated
// against the database on its next use. SessionAuth.Revoke uses it for
// RevokeAllForUser, since the cache has no index by user id.
func (s *SessionStore) ClearAll(ctx context.Context) error {
	if !s.IsEnabled() {
		return nil
	}
	return s.cache.DeletePattern(ctx, "session:*")
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// IsEnabled reports whether the underlying cache is configured and reachable.
func (s *SessionStore) IsEnabled() bool {
	return s.cache != nil && s.cache.IsEnabled()
}
