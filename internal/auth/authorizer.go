package auth

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

// ErrDenied is returned by an Authorizer that declines to grant a request.
// SessionAuth maps it to 401, collapsing authorization denial the same way
// a missing or invalid session does.
var ErrDenied = errors.New("auth: access denied")

// Authorizer is the per-route policy consulted after session extraction.
// Implementations are small and composable; a caller that needs a new
// policy writes one rather than extending this set.
type Authorizer interface {
	Authorize(ctx context.Context, c *gin.Context, session *models.UserSession) error
}

// HasPermissions grants iff the session's permission bit-set fully contains
// mask.
type HasPermissions struct {
	Mask models.Permission
}

func (h HasPermissions) Authorize(_ context.Context, _ *gin.Context, session *models.UserSession) error {
	if session == nil || !session.GrantedPermissions.Has(h.Mask) {
		return ErrDenied
	}
	return nil
}

// IsServerOwner grants iff the server named by the request path's
// server_id parameter is owned by the session's user.
type IsServerOwner struct {
	DB    *kzdb.Database
	Param string // path parameter name; defaults to "server_id"
}

func (o IsServerOwner) Authorize(ctx context.Context, c *gin.Context, session *models.UserSession) error {
	if session == nil {
		return ErrDenied
	}
	param := o.Param
	if param == "" {
		param = "server_id"
	}
	serverID, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		return ErrDenied
	}
	ownerID, err := o.DB.ServerOwner(ctx, serverID)
	if err != nil {
		return ErrDenied
	}
	if ownerID != session.UserID {
		return ErrDenied
	}
	return nil
}

// orAuthorizer grants if either branch grants. Both rejections are
// preserved so a caller can log why each branch declined.
type orAuthorizer struct {
	a, b Authorizer
}

// Or combines two Authorizers: the request is admitted if either grants.
func Or(a, b Authorizer) Authorizer {
	return orAuthorizer{a: a, b: b}
}

func (o orAuthorizer) Authorize(ctx context.Context, c *gin.Context, session *models.UserSession) error {
	errA := o.a.Authorize(ctx, c, session)
	if errA == nil {
		return nil
	}
	errB := o.b.Authorize(ctx, c, session)
	if errB == nil {
		return nil
	}
	return errors.Join(ErrDenied, errA, errB)
}
