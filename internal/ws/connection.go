package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/logger"
	"github.com/cs2kz-api/cs2kz-api/internal/models"
)

const (
	// writeWait bounds how long a single frame write may take.
	writeWait = 10 * time.Second

	// maxMessageSize rejects frames larger than a legitimate game-server
	// message could plausibly be.
	maxMessageSize = 64 * 1024

	// handshakeTimeout bounds how long the API waits for the mandatory
	// first hello frame before giving up on the connection.
	handshakeTimeout = 10 * time.Second
)

// ServerConnection is one authenticated game-server socket: an independent
// cooperative task that runs until its child token is cancelled by peer
// close, key revocation, global shutdown, or a decode/encode error.
type ServerConnection struct {
	hub    *WebSocketHub
	router *MessageRouter
	conn   *websocket.Conn

	serverID          int64
	pluginVersionID   int64
	heartbeatInterval time.Duration

	send   chan []byte
	cancel context.CancelFunc

	mu         sync.RWMutex
	currentMap string
}

func newServerConnection(hub *WebSocketHub, router *MessageRouter, conn *websocket.Conn, serverID int64, heartbeatInterval time.Duration) (*ServerConnection, context.Context) {
	ctx, cancel := context.WithCancel(hub.Context())
	return &ServerConnection{
		hub:               hub,
		router:            router,
		conn:              conn,
		serverID:          serverID,
		heartbeatInterval: heartbeatInterval,
		send:              make(chan []byte),
		cancel:            cancel,
	}, ctx
}

func (c *ServerConnection) setMap(name string) {
	c.mu.Lock()
	c.currentMap = name
	c.mu.Unlock()
}

// Map reports the game server's last-reported current map.
func (c *ServerConnection) Map() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentMap
}

// serve performs the mandatory hello handshake, then pumps frames until the
// child context is cancelled or the peer disconnects.
func (c *ServerConnection) serve(ctx context.Context, db *kzdb.Database) {
	defer func() {
		c.hub.Unregister(c)
		close(c.send)
		c.conn.Close()
	}()

	go c.watchCancellation(ctx)
	go c.writePump()

	if err := c.handshake(ctx, db); err != nil {
		logger.WebSocket().Warn().Err(err).Int64("server_id", c.serverID).Msg("handshake failed")
		return
	}

	c.hub.Register(c)
	c.readLoop(ctx)
}

// watchCancellation closes the underlying socket as soon as the child
// context is done, unblocking a pending ReadMessage in readLoop.
func (c *ServerConnection) watchCancellation(ctx context.Context) {
	<-ctx.Done()
	c.conn.Close()
}

// handshake reads the mandatory first hello frame and replies hello-ack,
// resolving the plugin version and current map it reports.
func (c *ServerConnection) handshake(ctx context.Context, db *kzdb.Database) error {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return err
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		return err
	}
	if env.Event != EventHello {
		return errors.New("first frame was not hello")
	}

	var hello HelloPayload
	if err := json.Unmarshal(env.Data, &hello); err != nil {
		return err
	}

	version, err := db.PluginVersionBySemVer(ctx, hello.PluginVersion)
	if err != nil {
		return err
	}
	c.pluginVersionID = version.ID
	c.setMap(hello.Map)

	var mapDetails *models.MapDetails
	if m, err := db.MapByName(ctx, hello.Map); err == nil {
		mapDetails = m
	}

	ack, err := encodeEnvelope(env.ID, EventHelloAck, HelloAckPayload{
		HeartbeatInterval: c.heartbeatInterval.Seconds(),
		Map:               mapDetails,
	})
	if err != nil {
		return err
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, ack)
}

// readLoop is the steady-state frame loop after a successful handshake.
// Every frame, valid or not, resets the read deadline: liveness is judged
// on traffic, not on any particular message type.
func (c *ServerConnection) readLoop(ctx context.Context) {
	deadline := 2 * c.heartbeatInterval
	c.conn.SetReadDeadline(time.Now().Add(deadline))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(deadline))

		env, err := decodeEnvelope(raw)
		if err != nil {
			c.enqueue(ctx, errorFrame(err.Error()))
			continue
		}

		event, payload, err := c.router.Handle(ctx, c, env)
		if err != nil {
			c.enqueue(ctx, errorFrame(err.Error()))
			continue
		}
		if event == "" {
			continue
		}

		reply, err := encodeEnvelope(env.ID, event, payload)
		if err != nil {
			c.enqueue(ctx, errorFrame(err.Error()))
			continue
		}
		c.enqueue(ctx, reply)
	}
}

// enqueue hands a frame to writePump. The send channel is unbuffered: no
// reply is ever dropped under load, since the correlation id is the only
// guarantee a caller has of matching a reply to its request. A slow
// consumer blocks this call, which blocks readLoop, which stalls the
// socket's own read window — the only back-pressure this connection
// applies. The ctx.Done() case exists only to unblock this send once the
// connection itself is being torn down, not as a second way to drop a
// frame.
func (c *ServerConnection) enqueue(ctx context.Context, frame []byte) {
	select {
	case c.send <- frame:
	case <-ctx.Done():
	}
}

// writePump drains the send channel to the socket until it is closed, then
// sends a close frame.
func (c *ServerConnection) writePump() {
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
