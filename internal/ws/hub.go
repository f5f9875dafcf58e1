package ws

import (
	"context"
	"sync"
	"time"

	"github.com/cs2kz-api/cs2kz-api/internal/logger"
)

// WebSocketHub tracks the one live ServerConnection per server_id and holds
// the root shutdown token every connection's child token derives from.
// Registration, unregistration, revocation and counting each take the
// hub's own RWMutex, so callers need no external locking.
type WebSocketHub struct {
	mu          sync.RWMutex
	connections map[int64]*ServerConnection

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWebSocketHub constructs an empty hub, rooted at a fresh shutdown token.
func NewWebSocketHub() *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		connections: make(map[int64]*ServerConnection),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is the hub's shutdown token; every ServerConnection derives its
// own child context from it.
func (h *WebSocketHub) Context() context.Context { return h.ctx }

// Register associates a connection with its server id. A server may only
// ever hold one live socket: if one is already registered, its child token
// is cancelled first so the stale connection unwinds cleanly.
func (h *WebSocketHub) Register(conn *ServerConnection) {
	h.mu.Lock()
	if old, ok := h.connections[conn.serverID]; ok {
		old.cancel()
	}
	h.connections[conn.serverID] = conn
	h.mu.Unlock()
	logger.WebSocket().Info().Int64("server_id", conn.serverID).Msg("server connected")
}

// Unregister removes a connection, but only if it is still the one on
// record for its server id (a connection superseded by Register must not
// clobber the entry the new connection just installed).
func (h *WebSocketHub) Unregister(conn *ServerConnection) {
	h.mu.Lock()
	if current, ok := h.connections[conn.serverID]; ok && current == conn {
		delete(h.connections, conn.serverID)
	}
	h.mu.Unlock()
	logger.WebSocket().Info().Int64("server_id", conn.serverID).Msg("server disconnected")
}

// RevokeServer cancels the child token of a server's live connection, if
// any. Called when an admin rotates or deletes that server's access key;
// the socket closes promptly and the server is expected to reconnect with
// its new key.
func (h *WebSocketHub) RevokeServer(serverID int64) {
	h.mu.RLock()
	conn, ok := h.connections[serverID]
	h.mu.RUnlock()
	if ok {
		conn.cancel()
	}
}

// Count reports the number of live connections, used by Shutdown to know
// when every connection has unwound.
func (h *WebSocketHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Shutdown cancels the hub's root token, which every live connection's
// child token inherits from, then waits for connections to drain or for ctx
// to expire, whichever comes first.
func (h *WebSocketHub) Shutdown(ctx context.Context) {
	h.cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for h.Count() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
