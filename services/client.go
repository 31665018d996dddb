package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smartbee/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	sendBufferSize = 64
)

// Client is one observer session: the bridge between a websocket connection
// and the hub. The rooms map is owned by the hub's Run loop; the pumps only
// touch conn and send.
type Client struct {
	SessionID string
	Identity  models.Identity

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	rooms map[string]bool
}

// NewClient wraps an upgraded connection with its authorization context.
func NewClient(hub *Hub, conn *websocket.Conn, identity models.Identity, logger *zap.Logger) *Client {
	return &Client{
		SessionID: uuid.NewString(),
		Identity:  identity,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		logger:    logger,
		rooms:     make(map[string]bool),
	}
}

// ReadPump consumes subscribe/unsubscribe requests from the observer until
// the connection drops, then unregisters the session. Malformed control
// messages are ignored; they must not kill the session.
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
				c.logger.Warn("Observer read error",
					zap.String("session_id", c.SessionID),
					zap.Error(err))
			}
			return
		}

		var req models.SubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil || req.NodeID == "" {
			c.logger.Debug("Ignoring malformed observer message",
				zap.String("session_id", c.SessionID))
			continue
		}

		switch req.Action {
		case "join":
			c.hub.Join(c, req.NodeID)
		case "leave":
			c.hub.Leave(c, req.NodeID)
		}
	}
}

// WritePump forwards hub events to the connection and keeps it alive with
// pings. It exits when the hub closes the send channel or a write fails.
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Observer write error",
					zap.String("session_id", c.SessionID),
					zap.Error(err))
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
