package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cs2kz-api/cs2kz-api/internal/apperr"
	"github.com/cs2kz-api/cs2kz-api/internal/auth"
	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
)

// Handler upgrades authenticated game-server connections on GET /auth/cs2.
type Handler struct {
	hub               *WebSocketHub
	router            *MessageRouter
	keys              *auth.AccessKeyStore
	db                *kzdb.Database
	heartbeatInterval time.Duration
	upgrader          websocket.Upgrader
}

// NewHandler constructs the WebSocket upgrade handler.
func NewHandler(hub *WebSocketHub, router *MessageRouter, keys *auth.AccessKeyStore, db *kzdb.Database, heartbeatInterval time.Duration) *Handler {
	return &Handler{
		hub:               hub,
		router:            router,
		keys:              keys,
		db:                db,
		heartbeatInterval: heartbeatInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Upgrade handles GET /auth/cs2: validates the bearer access key, upgrades
// to WebSocket on success, and runs the connection until it unwinds.
func (h *Handler) Upgrade(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		apperr.AbortWithError(c, apperr.AuthMissing("missing access-key bearer token"))
		return
	}
	secret := strings.TrimPrefix(header, "Bearer ")

	serverID, err := h.keys.Authenticate(c.Request.Context(), secret)
	if err != nil {
		apperr.AbortWithError(c, apperr.AuthInvalid("invalid or expired access key"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	serverConn, ctx := newServerConnection(h.hub, h.router, conn, serverID, h.heartbeatInterval)
	serverConn.serve(ctx, h.db)
}
