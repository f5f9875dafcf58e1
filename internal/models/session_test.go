package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPermission_Has(t *testing.T) {
	granted := PermissionBanPlayer | PermissionManageMaps
	assert.True(t, granted.Has(PermissionBanPlayer))
	assert.True(t, granted.Has(PermissionManageMaps))
	assert.True(t, granted.Has(PermissionBanPlayer|PermissionManageMaps))
	assert.False(t, granted.Has(PermissionManageAdmins))
	assert.True(t, granted.Has(PermissionNone), "the empty mask is always contained")
}

func TestUserSession_Expired(t *testing.T) {
	now := time.Now()
	session := &UserSession{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, session.Expired(now))
	assert.True(t, session.Expired(now.Add(2*time.Hour)))
	assert.True(t, session.Expired(now.Add(time.Hour)), "a session is expired exactly at its own expiry")
}

func TestAccessKey_Expired(t *testing.T) {
	now := time.Now()

	noExpiry := &AccessKey{}
	assert.False(t, noExpiry.Expired(now), "a nil ExpiresAt means the key never expires")

	future := now.Add(time.Hour)
	withExpiry := &AccessKey{ExpiresAt: &future}
	assert.False(t, withExpiry.Expired(now))
	assert.True(t, withExpiry.Expired(future.Add(time.Minute)))
}
