// This file implements the browser-facing auth endpoints: the Steam OpenID
// login redirect, the callback that verifies it and creates a session, and
// logout. These sit outside the core (the REST CRUD surface is an external
// collaborator) but their contracts are consumed by SessionAuth.
package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cs2kz-api/cs2kz-api/internal/apperr"
	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/steamapi"
)

// PlayerCookieName is the non-http-only cookie carrying a JSON blob of
// public profile fields for the frontend to read directly.
const PlayerCookieName = "kz-player"

// Handlers bundles the dependencies behind the four browser auth routes.
type Handlers struct {
	sessions *SessionAuth
	openid   *SteamOpenID
	steam    *steamapi.Client
	db       *kzdb.Database
	secure   bool
	domain   string
}

// NewHandlers constructs the browser auth handlers.
func NewHandlers(sessions *SessionAuth, openid *SteamOpenID, steam *steamapi.Client, db *kzdb.Database, secure bool, domain string) *Handlers {
	return &Handlers{sessions: sessions, openid: openid, steam: steam, db: db, secure: secure, domain: domain}
}

type playerCookiePayload struct {
	SteamID    string `json:"steam_id"`
	Username   string `json:"username"`
	AvatarURL  string `json:"avatar_url"`
	ProfileURL string `json:"profile_url"`
}

// Login handles GET /auth/web/login?redirect_to=<url>, redirecting to
// Steam's OpenID provider with a callback pointing back at this service.
func (h *Handlers) Login(c *gin.Context) {
	redirectTo := c.Query("redirect_to")
	c.Redirect(http.StatusSeeOther, h.openid.LoginURL(redirectTo))
}

// SteamCallback handles GET /auth/web/steam-callback?<openid-params>:
// verifies the upstream assertion, creates a session, sets the kz-auth and
// kz-player cookies, then redirects to the original destination.
func (h *Handlers) SteamCallback(c *gin.Context) {
	steamID, err := h.openid.Verify(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		apperr.HandleError(c, err)
		return
	}

	user, err := h.steam.FetchUser(c.Request.Context(), steamID)
	if err != nil {
		apperr.HandleError(c, err)
		return
	}

	if err := h.db.UpsertPlayer(c.Request.Context(), steamID, user.Username); err != nil {
		apperr.HandleError(c, apperr.Internal("upserting player", err))
		return
	}

	permissions, err := h.db.PlayerPermissions(c.Request.Context(), steamID)
	if err != nil {
		apperr.HandleError(c, apperr.Internal("loading player permissions", err))
		return
	}

	sessionID := uuid.Must(uuid.NewV7()).String()
	session, err := h.sessions.CreateSession(c.Request.Context(), sessionID, steamID, permissions)
	if err != nil {
		apperr.HandleError(c, apperr.Internal("creating session", err))
		return
	}

	h.sessions.IssueCookie(c, session)
	h.setPlayerCookie(c, steamID, user)

	redirectTo := c.Query("redirect_to")
	if redirectTo == "" {
		redirectTo = "/"
	}
	c.Redirect(http.StatusSeeOther, redirectTo)
}

func (h *Handlers) setPlayerCookie(c *gin.Context, steamID int64, user *steamapi.User) {
	payload := playerCookiePayload{
		SteamID:    fmt.Sprintf("%d", steamID),
		Username:   user.Username,
		AvatarURL:  user.AvatarURL,
		ProfileURL: user.ProfileURL,
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.SetCookie(PlayerCookieName, string(blob), 0, "/", h.domain, h.secure, false)
}

// Logout handles GET /auth/web/logout?all=<bool>: revokes the current
// session, or every session belonging to the caller when all=true, and
// clears both cookies.
func (h *Handlers) Logout(c *gin.Context) {
	session := Session(c)
	if session == nil {
		c.Status(http.StatusNoContent)
		return
	}
	scope := RevokeCurrent
	if all, _ := strconv.ParseBool(c.Query("all")); all {
		scope = RevokeAllForUser
	}
	if err := h.sessions.Revoke(c, session, scope); err != nil {
		apperr.HandleError(c, apperr.Internal("revoking session", err))
		return
	}
	c.SetCookie(PlayerCookieName, "", -1, "/", h.domain, h.secure, false)
	c.Status(http.StatusNoContent)
}

// Whoami handles GET /auth/web: returns the caller's session, or 401 if
// anonymous.
func (h *Handlers) Whoami(c *gin.Context) {
	session := Session(c)
	if session == nil {
		apperr.AbortWithError(c, apperr.AuthMissing("not authenticated"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":     session.UserID,
		"permissions": session.GrantedPermissions,
		"expires_at":  session.ExpiresAt,
	})
}
