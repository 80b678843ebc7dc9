package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
)

// MessageHub pushes newly stored WEB messages to their recipients. Every
// connection listens on realtime-messages:<userID> through the broker so
// messages published by any instance reach it.
type MessageHub struct {
	broker   Broker
	presence Presence
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	register   chan *MessageClient
	unregister chan *MessageClient
	broadcast  chan delivery

	users map[uuid.UUID]*userClients
}

// Presence keeps a connected user marked online
type Presence interface {
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
}

type userClients struct {
	clients     map[*MessageClient]struct{}
	unsubscribe func()
}

// MessageClient represents a WebSocket client of the message feed
type MessageClient struct {
	hub    *MessageHub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	closed bool
}

// RealtimeMessageTopic is the feed topic for userID
func RealtimeMessageTopic(userID uuid.UUID) string {
	return constants.RealtimeMessageTopicPrefix + userID.String()
}

// NewMessageHub creates a new message feed hub; presence may be nil
func NewMessageHub(broker Broker, presence Presence, allowedOrigins []string, m *metrics.Metrics) *MessageHub {
	hub := &MessageHub{
		broker:   broker,
		presence: presence,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		register:   make(chan *MessageClient),
		unregister: make(chan *MessageClient),
		broadcast:  make(chan delivery, 256),
		users:      make(map[uuid.UUID]*userClients),
	}

	go hub.run()

	return hub
}

// run handles hub operations
func (h *MessageHub) run() {
	for {
		select {
		case client := <-h.register:
			entry, ok := h.users[client.userID]
			if !ok {
				topic := RealtimeMessageTopic(client.userID)
				unsubscribe, err := h.broker.Subscribe(context.Background(), topic, func(payload []byte) {
					h.broadcast <- delivery{topic: topic, payload: payload}
				})
				if err != nil {
					logger.Error("Failed to subscribe message feed",
						zap.String("user_id", client.userID.String()),
						zap.Error(err))
					client.closed = true
					close(client.send)
					continue
				}
				entry = &userClients{clients: make(map[*MessageClient]struct{}), unsubscribe: unsubscribe}
				h.users[client.userID] = entry
			}
			entry.clients[client] = struct{}{}

		case client := <-h.unregister:
			if entry, ok := h.users[client.userID]; ok {
				delete(entry.clients, client)
				if len(entry.clients) == 0 {
					delete(h.users, client.userID)
					go entry.unsubscribe()
				}
			}
			if !client.closed {
				client.closed = true
				close(client.send)
			}

		case d := <-h.broadcast:
			userID, err := uuid.Parse(d.topic[len(constants.RealtimeMessageTopicPrefix):])
			if err != nil {
				continue
			}
			entry, ok := h.users[userID]
			if !ok {
				continue
			}
			for client := range entry.clients {
				if client.closed {
					continue
				}
				select {
				case client.send <- d.payload:
					h.metrics.RecordWebSocketMessage("chat", "outbound")
				default:
					client.closed = true
					close(client.send)
				}
			}
		}
	}
}

// ServeWS handles WebSocket requests for the message feed
func (h *MessageHub) ServeWS(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	client := &MessageClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}

	h.register <- client
	client.heartbeat()

	go client.writePump()
	go client.readPump()
}

// heartbeat renews the presence entry of the client's user
func (c *MessageClient) heartbeat() {
	if c.hub.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.WebSocketWriteWait)
	defer cancel()
	if err := c.hub.presence.RefreshPresence(ctx, c.userID); err != nil {
		logger.Debug("Failed to refresh presence", zap.String("user_id", c.userID.String()), zap.Error(err))
	}
}

// readPump only watches for close and pong frames; the feed is one way
func (c *MessageClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		c.heartbeat()
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			return
		}
	}
}

// writePump writes messages to WebSocket
func (c *MessageClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
