package socket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"collabnote/internal/identity"
	"collabnote/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is a websocket connection. It implements Peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// ServeWs upgrades the request and starts the connection's pumps. The
// identity attached to the request context by the auth middleware, if any,
// overrides whatever user the client claims in its events.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	var auth *identity.User
	if u, ok := identity.FromContext(r.Context()); ok {
		auth = &u
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		id:   uuid.NewString(),
		send: make(chan []byte, hub.opts.SendBuffer),
	}
	hub.Lifecycle.OnConnect(client, auth)

	go client.writePump()
	go client.readPump()
}

func (c *Client) ID() string { return c.id }

// Send queues msg for the write pump. It never blocks: a full or closed
// queue rejects the message.
func (c *Client) Send(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which sends a close frame and drops the
// connection; the read pump then runs the disconnect cleanup.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Lifecycle.OnDisconnect(c.id)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	})

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			c.hub.metrics.violation("malformed_envelope")
			logger.Log.Warn("malformed envelope",
				zap.String("connection_id", c.id),
				zap.Error(err))
			continue
		}
		c.hub.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Sugar.Warnf("Write to connection %s failed: %v", c.id, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
