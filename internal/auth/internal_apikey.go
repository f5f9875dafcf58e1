// This file implements the internal-API-key caller class: a long-lived
// signed JWT identifying the CI publisher that releases the mod binary,
// checked the same way a user-session or server-key caller would be, so the
// publish route can reuse the ordinary Authorizer combinators.
package auth

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cs2kz-api/cs2kz-api/internal/apperr"
	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// internalAPIKeySubject is the fixed principal granted to a valid
// internal-API-key; there is exactly one CI publisher, not a roster of
// users, so no user_id lookup is needed.
const internalAPIKeySubject = "ci-publisher"

// InternalAPIKeyAuth validates the CI publisher's bearer JWT.
type InternalAPIKeyAuth struct {
	secret []byte
}

// NewInternalAPIKeyAuth constructs the verifier from the shared signing
// secret.
func NewInternalAPIKeyAuth(secret string) *InternalAPIKeyAuth {
	return &InternalAPIKeyAuth{secret: []byte(secret)}
}

// Issue mints a long-lived internal-API-key for out-of-band distribution to
// the CI publisher.
func (a *InternalAPIKeyAuth) Issue(ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   internalAPIKeySubject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Middleware requires a valid internal-API-key on the Authorization header
// and stamps a synthetic session carrying PermissionPublishPlugin, so
// downstream routes can gate on HasPermissions exactly like a browser
// caller.
func (a *InternalAPIKeyAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			apperr.AbortWithError(c, apperr.AuthMissing("missing internal-api-key bearer token"))
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return a.secret, nil
		})
		if err != nil || claims.Subject != internalAPIKeySubject {
			apperr.AbortWithError(c, apperr.AuthInvalid("invalid internal-api-key"))
			return
		}

		c.Set(sessionContextKey, &models.UserSession{
			GrantedPermissions: models.PermissionPublishPlugin,
			ExpiresAt:          claims.ExpiresAt.Time,
		})
		c.Next()
	}
}
