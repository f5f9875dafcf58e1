// This file implements SessionAuth: resolving the caller of a browser
// request from the kz-auth cookie, delegating admission to a per-route
// Authorizer, and rewriting the cookie on the way out to reflect the new
// expiry or an explicit revocation.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cs2kz-api/cs2kz-api/internal/apperr"
	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/logger"
	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// CookieName is the name of the session cookie.
const CookieName = "kz-auth"

const (
	sessionContextKey = "auth.session"
	revokedContextKey = "auth.revoked"
)

// RevokeScope controls how many of a user's sessions a revocation clears.
type RevokeScope int

const (
	RevokeCurrent RevokeScope = iota
	RevokeAllForUser
)

// SessionAuth is the dual-audience session layer for browser callers.
type SessionAuth struct {
	db           *kzdb.Database
	store        *SessionStore
	cookieDomain string
	secure       bool
	maxAge       time.Duration
}

// NewSessionAuth constructs SessionAuth. secure controls the cookie's
// Secure attribute and should be true whenever the service is served over
// TLS.
func NewSessionAuth(db *kzdb.Database, store *SessionStore, cookieDomain string, secure bool, maxAge time.Duration) *SessionAuth {
	return &SessionAuth{db: db, store: store, cookieDomain: cookieDomain, secure: secure, maxAge: maxAge}
}

// extract resolves the caller's session, caching it on the Gin context so a
// middleware chain that runs extraction twice only hits the store once.
func (a *SessionAuth) extract(c *gin.Context) (*models.UserSession, error) {
	if v, ok := c.Get(sessionContextKey); ok {
		return v.(*models.UserSession), nil
	}

	raw, err := c.Cookie(CookieName)
	if err != nil || raw == "" {
		return nil, apperr.AuthMissing("missing kz-auth cookie")
	}

	ctx := c.Request.Context()

	if cached, ok := a.store.GetSession(ctx, raw); ok {
		c.Set(sessionContextKey, cached)
		return cached, nil
	}

	session, err := a.db.GetSession(ctx, raw)
	if errors.Is(err, kzdb.ErrNotFound) {
		return nil, apperr.AuthInvalid("unknown session")
	}
	if err != nil {
		return nil, apperr.Internal("loading session", err)
	}
	if session.Expired(time.Now()) {
		return nil, apperr.AuthInvalid("session expired")
	}

	if err := a.store.PutSession(ctx, session); err != nil {
		logger.Auth().Warn().Err(err).Msg("failed to cache session")
	}
	c.Set(sessionContextKey, session)
	return session, nil
}

// extend refreshes a session's expiry in both the database and the cache.
func (a *SessionAuth) extend(ctx context.Context, session *models.UserSession) error {
	session.ExpiresAt = time.Now().Add(a.maxAge)
	if err := a.db.ExtendSession(ctx, session.ID, session.ExpiresAt); err != nil {
		return err
	}
	return a.store.PutSession(ctx, session)
}

// Revoke ends a session: the current one, or every session belonging to its
// user. Marks the request so the outgoing middleware writes a deletion
// cookie instead of an extension.
func (a *SessionAuth) Revoke(c *gin.Context, session *models.UserSession, scope RevokeScope) error {
	ctx := c.Request.Context()
	c.Set(revokedContextKey, true)

	switch scope {
	case RevokeAllForUser:
		if err := a.db.DeleteUserSessions(ctx, session.UserID); err != nil {
			return err
		}
		return a.store.ClearAll(ctx)
	default:
		if err := a.db.DeleteSession(ctx, session.ID); err != nil {
			return err
		}
		return a.store.DeleteSession(ctx, session.ID)
	}
}

// Middleware requires a valid session and, if policy is non-nil, admission
// under it. On success it rewrites the session cookie once the handler
// completes, unless the handler aborted the request: extended to a fresh
// expiry, or deleted if the handler called Revoke. A database failure while extending does not affect the
// response the handler already produced; extension is best-effort. On
// rejection (missing/invalid/expired session, or policy denial) it also
// writes a deletion cookie, so a stale cookie a browser is still holding
// gets cleared on the very request that rejects it.
func (a *SessionAuth) Middleware(policy Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := a.extract(c)
		if err != nil {
			a.deleteCookie(c)
			var appErr *apperr.AppError
			if errors.As(err, &appErr) {
				apperr.AbortWithError(c, appErr)
			} else {
				apperr.AbortWithError(c, apperr.AuthInvalid(err.Error()))
			}
			return
		}

		if policy != nil {
			if err := policy.Authorize(c.Request.Context(), c, session); err != nil {
				a.deleteCookie(c)
				apperr.AbortWithError(c, apperr.Forbidden("access denied"))
				return
			}
		}

		c.Next()

		if c.IsAborted() {
			return
		}

		if revoked, _ := c.Get(revokedContextKey); revoked == true {
			a.deleteCookie(c)
			return
		}

		if err := a.extend(c.Request.Context(), session); err != nil {
			logger.Auth().Error().Err(err).Str("session_id", session.ID).Msg("failed to extend session")
		}
		a.writeCookie(c, session)
	}
}

// Session retrieves the session a Middleware call already extracted. Safe
// to call from any handler downstream of Middleware.
func Session(c *gin.Context) *models.UserSession {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	return v.(*models.UserSession)
}

func (a *SessionAuth) writeCookie(c *gin.Context, session *models.UserSession) {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, session.ID, maxAge, "/", a.cookieDomain, a.secure, true)
}

func (a *SessionAuth) deleteCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", a.cookieDomain, a.secure, true)
}

// IssueCookie sets the kz-auth cookie for a newly created session; used by
// the steam-callback handler, which runs before any Middleware has a
// session to extend.
func (a *SessionAuth) IssueCookie(c *gin.Context, session *models.UserSession) {
	a.writeCookie(c, session)
}

// CreateSession persists a brand new session for an authenticated user and
// returns it, ready to be handed to IssueCookie.
func (a *SessionAuth) CreateSession(ctx context.Context, sessionID string, userID int64, permissions models.Permission) (*models.UserSession, error) {
	now := time.Now()
	session := &models.UserSession{
		ID:                 sessionID,
		UserID:             userID,
		GrantedPermissions: permissions,
		CreatedAt:          now,
		ExpiresAt:          now.Add(a.maxAge),
	}
	if err := a.db.InsertSession(ctx, session); err != nil {
		return nil, err
	}
	if err := a.store.PutSession(ctx, session); err != nil {
		logger.Auth().Warn().Err(err).Msg("failed to cache new session")
	}
	return session, nil
}
