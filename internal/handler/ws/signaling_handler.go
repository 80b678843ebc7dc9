package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"commhub-backend/internal/signaling"
	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
)

// Broker carries relay traffic between service instances
type Broker interface {
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error)
	Send(ctx context.Context, topic string, payload []byte) error
}

// SignalingHub relays signaling frames between WebSocket clients. Each client
// may only listen on its own topic but may publish to any signaling topic.
type SignalingHub struct {
	broker  Broker
	metrics *metrics.Metrics

	// Subscribed clients per topic
	topics map[string]*topicSubscription

	register   chan *SignalingClient
	unregister chan *SignalingClient
	subscribe  chan subscription
	leave      chan subscription
	deliver    chan delivery
	direct     chan direct

	upgrader websocket.Upgrader

	// Concurrency limit
	maxConnections int
	semaphore      chan struct{}

	mu      sync.Mutex
	clients int
}

type topicSubscription struct {
	clients     map[*SignalingClient]struct{}
	unsubscribe func()
}

type subscription struct {
	client *SignalingClient
	topic  string
}

type direct struct {
	client *SignalingClient
	data   []byte
}

type delivery struct {
	topic   string
	payload []byte
}

// SignalingClient represents one relay WebSocket
type SignalingClient struct {
	hub    *SignalingHub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	topics map[string]struct{}
	closed bool
}

// NewSignalingHub creates a relay hub on top of broker. An empty allowedOrigins
// accepts any origin.
func NewSignalingHub(broker Broker, maxConns int, allowedOrigins []string, m *metrics.Metrics) *SignalingHub {
	if maxConns <= 0 {
		maxConns = constants.MaxSignalingConnections
	}

	hub := &SignalingHub{
		broker:         broker,
		metrics:        m,
		topics:         make(map[string]*topicSubscription),
		register:       make(chan *SignalingClient),
		unregister:     make(chan *SignalingClient),
		subscribe:      make(chan subscription),
		leave:          make(chan subscription),
		deliver:        make(chan delivery, 256),
		direct:         make(chan direct, 64),
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}

	go hub.run()

	return hub
}

// checkOrigin admits non-browser clients, which send no Origin header
func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// SignalingTopic is the only topic a user may subscribe to
func SignalingTopic(userID uuid.UUID) string {
	return constants.SignalingTopicPrefix + userID.String()
}

// run owns topics and client send channels
func (h *SignalingHub) run() {
	for {
		select {
		case <-h.register:
			h.setClients(1)

		case client := <-h.unregister:
			for topic := range client.topics {
				h.removeFromTopic(client, topic)
			}
			if !client.closed {
				client.closed = true
				close(client.send)
			}
			h.setClients(-1)

		case sub := <-h.subscribe:
			if sub.client.closed {
				continue
			}
			entry, ok := h.topics[sub.topic]
			if !ok {
				topic := sub.topic
				unsubscribe, err := h.broker.Subscribe(context.Background(), topic, func(payload []byte) {
					h.deliver <- delivery{topic: topic, payload: payload}
				})
				if err != nil {
					logger.Error("Failed to subscribe relay topic",
						zap.String("topic", topic),
						zap.Error(err))
					sub.client.queue(errorFrame(topic, "subscription failed"))
					continue
				}
				entry = &topicSubscription{
					clients:     make(map[*SignalingClient]struct{}),
					unsubscribe: unsubscribe,
				}
				h.topics[topic] = entry
			}
			entry.clients[sub.client] = struct{}{}
			sub.client.topics[sub.topic] = struct{}{}

		case sub := <-h.leave:
			h.removeFromTopic(sub.client, sub.topic)

		case d := <-h.direct:
			d.client.queue(d.data)

		case d := <-h.deliver:
			entry, ok := h.topics[d.topic]
			if !ok {
				continue
			}
			frame, err := json.Marshal(signaling.Frame{
				Type:    signaling.FrameMessage,
				Topic:   d.topic,
				Payload: d.payload,
			})
			if err != nil {
				logger.Warn("Dropping unencodable relay payload", zap.String("topic", d.topic), zap.Error(err))
				continue
			}
			for client := range entry.clients {
				if client.closed {
					continue
				}
				select {
				case client.send <- frame:
					h.metrics.RecordWebSocketMessage("message", "outbound")
				default:
					// slow consumer
					client.closed = true
					close(client.send)
				}
			}
		}
	}
}

func (h *SignalingHub) removeFromTopic(client *SignalingClient, topic string) {
	delete(client.topics, topic)

	entry, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(entry.clients, client)
	if len(entry.clients) == 0 {
		delete(h.topics, topic)
		// the broker handler may be blocked on deliver
		go entry.unsubscribe()
	}
}

func (h *SignalingHub) setClients(delta int) {
	h.mu.Lock()
	h.clients += delta
	n := h.clients
	h.mu.Unlock()
	h.metrics.SetWebSocketConnections(n)
}

// Clients returns the number of connected clients
func (h *SignalingHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// ServeWS handles WebSocket requests for signaling
func (h *SignalingHub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		<-h.semaphore
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		<-h.semaphore
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	client := &SignalingClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		topics: make(map[string]struct{}),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

const offerEvent = "call-offer"

// relayedSignal is the call signal envelope carried by publish frames. The
// payload stays a raw map so fields the relay does not know pass through.
type relayedSignal struct {
	Event   string                     `json:"event"`
	Payload map[string]json.RawMessage `json:"payload"`
}

// stampSender rewrites senderId to the authenticated user so a client cannot
// speak for someone else. Offers must also name that user as the caller.
func stampSender(raw json.RawMessage, userID uuid.UUID) (json.RawMessage, error) {
	var sig relayedSignal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil, fmt.Errorf("malformed signal: %w", err)
	}
	if sig.Event == "" {
		return nil, fmt.Errorf("signal without event")
	}
	if sig.Payload == nil {
		sig.Payload = make(map[string]json.RawMessage)
	}

	if sig.Event == offerEvent {
		var caller struct {
			ID uuid.UUID `json:"id"`
		}
		if data, ok := sig.Payload["caller"]; ok {
			if err := json.Unmarshal(data, &caller); err != nil {
				return nil, fmt.Errorf("malformed caller: %w", err)
			}
		}
		if caller.ID != userID {
			return nil, fmt.Errorf("offer caller does not match sender")
		}
	}

	sender, err := json.Marshal(userID)
	if err != nil {
		return nil, err
	}
	sig.Payload["senderId"] = sender

	return json.Marshal(sig)
}

func errorFrame(topic, message string) []byte {
	data, _ := json.Marshal(signaling.Frame{Type: signaling.FrameError, Topic: topic, Error: message})
	return data
}

// queue is only called from the hub loop
func (c *SignalingClient) queue(data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump reads frames from the socket and applies them
func (c *SignalingClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		<-c.hub.semaphore
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return nil
	})

	own := SignalingTopic(c.userID)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			return
		}
		c.hub.metrics.RecordWebSocketMessage("frame", "inbound")

		var frame signaling.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			logger.Warn("Invalid frame from WebSocket",
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			continue
		}

		switch frame.Type {
		case signaling.FrameSubscribe:
			if frame.Topic != own {
				c.reply(frame.Topic, "subscribing to another user's topic is not allowed")
				continue
			}
			c.hub.subscribe <- subscription{client: c, topic: frame.Topic}

		case signaling.FrameUnsubscribe:
			c.hub.leave <- subscription{client: c, topic: frame.Topic}

		case signaling.FramePublish:
			if !strings.HasPrefix(frame.Topic, constants.SignalingTopicPrefix) {
				c.reply(frame.Topic, "publishing outside signaling topics is not allowed")
				continue
			}
			if len(frame.Payload) == 0 {
				c.reply(frame.Topic, "empty payload")
				continue
			}
			payload, err := stampSender(frame.Payload, c.userID)
			if err != nil {
				logger.Warn("Rejected relay payload",
					zap.String("topic", frame.Topic),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
				c.reply(frame.Topic, err.Error())
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), constants.WebSocketWriteWait)
			err = c.hub.broker.Send(ctx, frame.Topic, payload)
			cancel()
			if err != nil {
				logger.Warn("Relay publish failed",
					zap.String("topic", frame.Topic),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
				c.reply(frame.Topic, "publish failed")
			}

		default:
			c.reply(frame.Topic, "unknown frame type")
		}
	}
}

// reply sends an error frame via the hub so send is never written after close
func (c *SignalingClient) reply(topic, message string) {
	c.hub.direct <- direct{client: c, data: errorFrame(topic, message)}
}

// writePump writes queued frames and keeps the connection alive with pings
func (c *SignalingClient) writePump() {
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
