package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	coreerrors "github.com/welldanyogia/webrana-mailstore/internal/errors"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// SubscribeAuthorizer decides whether the connection's user may watch a
// mailbox's events. The handler binds one per connection, closing over the
// authenticated session.
type SubscribeAuthorizer func(mailboxID uint) error

// Client is one event stream connection. Subscriptions pass through the
// authorizer before they reach the hub, so a client only ever receives
// events for mailboxes its user can look up.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	authorize SubscribeAuthorizer
	logger    *slog.Logger
}

// NewClient creates a Client. A nil authorizer denies every subscription.
func NewClient(hub *Hub, conn *websocket.Conn, authorize SubscribeAuthorizer, logger *slog.Logger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		authorize: authorize,
		logger:    logger,
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				if c.logger != nil {
					c.logger.Error("websocket read error", slog.Any("error", err))
				}
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming WebSocket messages
func (c *Client) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}
	if msg.MailboxID == 0 && (msg.Type == MessageTypeSubscribe || msg.Type == MessageTypeUnsubscribe) {
		c.sendError("mailbox_id is required")
		return
	}

	switch msg.Type {
	case MessageTypeSubscribe:
		if err := c.authorizeSubscribe(msg.MailboxID); err != nil {
			if coreerrors.IsNotFound(err) {
				c.sendError("mailbox not found")
			} else {
				c.sendError("subscription denied")
			}
			return
		}
		c.hub.Subscribe(c, msg.MailboxID)

	case MessageTypeUnsubscribe:
		c.hub.Unsubscribe(c, msg.MailboxID)

	default:
		c.sendError("unknown message type")
	}
}

// authorizeSubscribe gates a subscription on the connection's rights.
func (c *Client) authorizeSubscribe(mailboxID uint) error {
	if c.authorize == nil {
		return coreerrors.ErrInsufficientRights
	}
	return c.authorize(mailboxID)
}

// sendError sends an error message to the client
func (c *Client) sendError(errMsg string) {
	msg := WSMessage{
		Type:  MessageTypeError,
		Error: errMsg,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
