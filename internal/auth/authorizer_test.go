package auth

import (
	"context"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

func TestHasPermissions_GrantsWhenMaskSatisfied(t *testing.T) {
	session := &models.UserSession{GrantedPermissions: models.PermissionBanPlayer | models.PermissionManageMaps}
	policy := HasPermissions{Mask: models.PermissionBanPlayer}
	assert.NoError(t, policy.Authorize(context.Background(), nil, session))
}

func TestHasPermissions_DeniesWhenMaskMissing(t *testing.T) {
	session := &models.UserSession{GrantedPermissions: models.PermissionManageMaps}
	policy := HasPermissions{Mask: models.PermissionBanPlayer}
	assert.ErrorIs(t, policy.Authorize(context.Background(), nil, session), ErrDenied)
}

func TestHasPermissions_DeniesNilSession(t *testing.T) {
	policy := HasPermissions{Mask: models.PermissionBanPlayer}
	assert.ErrorIs(t, policy.Authorize(context.Background(), nil, nil), ErrDenied)
}

type fakeAuthorizer struct {
	err error
}

func (f fakeAuthorizer) Authorize(context.Context, *gin.Context, *models.UserSession) error {
	return f.err
}

func TestOr_GrantsIfEitherBranchGrants(t *testing.T) {
	granting := fakeAuthorizer{err: nil}
	denying := fakeAuthorizer{err: ErrDenied}

	assert.NoError(t, Or(granting, denying).Authorize(context.Background(), nil, nil))
	assert.NoError(t, Or(denying, granting).Authorize(context.Background(), nil, nil))
}

func TestOr_DeniesIfBothBranchesDeny(t *testing.T) {
	denying := fakeAuthorizer{err: ErrDenied}
	err := Or(denying, denying).Authorize(context.Background(), nil, nil)
	assert.Error(t, err)
}
