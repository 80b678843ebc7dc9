package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"commhub-backend/pkg/constants"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
)

const (
	reconnectMinDelay = 500 * time.Millisecond
	reconnectMaxDelay = 30 * time.Second
)

// WSProvider talks to the signaling relay over one WebSocket and
// reconnects with backoff when the connection drops
type WSProvider struct {
	url    string
	token  TokenSource
	dialer *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]map[*wsSub]struct{}
	done    chan struct{}
}

type wsSub struct {
	handler func([]byte)
}

// TokenSource returns the current bearer token. It is consulted on every
// dial so reconnects pick up refreshed tokens.
type TokenSource func() string

// DialWS connects to the relay at url authenticating with the token from
// token, which may be nil for anonymous relays
func DialWS(ctx context.Context, url string, token TokenSource) (*WSProvider, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	p := &WSProvider{
		url:    url,
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ctx:    runCtx,
		cancel: cancel,
		subs:   make(map[string]map[*wsSub]struct{}),
		done:   make(chan struct{}),
	}

	conn, err := p.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	p.conn = conn

	go p.run(conn)

	return p, nil
}

func (p *WSProvider) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if p.token != nil {
		if token := p.token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := p.dialer.DialContext(ctx, p.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("signaling relay handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to reach signaling relay: %w", err)
	}
	return conn, nil
}

// run reads from conn until it fails, then redials and restores subscriptions
func (p *WSProvider) run(conn *websocket.Conn) {
	defer close(p.done)

	delay := reconnectMinDelay
	for {
		p.readLoop(conn)

		p.mu.Lock()
		if p.conn == conn {
			p.conn = nil
		}
		p.mu.Unlock()
		_ = conn.Close()

		for {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(delay):
			}

			next, err := p.dial(p.ctx)
			if err == nil {
				conn = next
				delay = reconnectMinDelay
				break
			}
			logger.Warn("Signaling relay reconnect failed", zap.Duration("retry_in", delay), zap.Error(err))
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}

		p.mu.Lock()
		p.conn = conn
		topics := make([]string, 0, len(p.subs))
		for topic := range p.subs {
			topics = append(topics, topic)
		}
		p.mu.Unlock()

		for _, topic := range topics {
			if err := p.write(Frame{Type: FrameSubscribe, Topic: topic}); err != nil {
				logger.Warn("Failed to restore subscription", zap.String("topic", topic), zap.Error(err))
			}
		}
		logger.Info("Signaling relay reconnected", zap.Int("topics", len(topics)))
	}
}

func (p *WSProvider) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(constants.WebSocketWriteWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if p.ctx.Err() == nil {
				logger.Warn("Signaling relay connection lost", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Warn("Invalid frame from signaling relay", zap.Error(err))
			continue
		}

		switch frame.Type {
		case FrameMessage:
			p.dispatch(frame.Topic, frame.Payload)
		case FrameError:
			logger.Warn("Signaling relay reported an error",
				zap.String("topic", frame.Topic),
				zap.String("error", frame.Error))
		}
	}
}

func (p *WSProvider) dispatch(topic string, payload []byte) {
	p.mu.Lock()
	handlers := make([]func([]byte), 0, len(p.subs[topic]))
	for sub := range p.subs[topic] {
		handlers = append(handlers, sub.handler)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

func (p *WSProvider) write(frame Frame) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return errors.ServiceUnavailableError("Signaling relay is not connected")
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
	return conn.WriteJSON(frame)
}

// Subscribe registers handler for topic; the relay only accepts the caller's own topic
func (p *WSProvider) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &wsSub{handler: handler}

	p.mu.Lock()
	first := len(p.subs[topic]) == 0
	if first {
		p.subs[topic] = make(map[*wsSub]struct{})
	}
	p.subs[topic][sub] = struct{}{}
	p.mu.Unlock()

	if first {
		if err := p.write(Frame{Type: FrameSubscribe, Topic: topic}); err != nil {
			p.unsubscribe(topic, sub)
			return nil, err
		}
	}

	return func() { p.unsubscribe(topic, sub) }, nil
}

func (p *WSProvider) unsubscribe(topic string, sub *wsSub) {
	p.mu.Lock()
	set, ok := p.subs[topic]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(set, sub)
	last := len(set) == 0
	if last {
		delete(p.subs, topic)
	}
	p.mu.Unlock()

	if last {
		if err := p.write(Frame{Type: FrameUnsubscribe, Topic: topic}); err != nil {
			logger.Debug("Unsubscribe frame not sent", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Send publishes a JSON payload on topic through the relay
func (p *WSProvider) Send(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return errors.InvalidInputError("Signaling payload must be JSON")
	}
	return p.write(Frame{Type: FramePublish, Topic: topic, Payload: payload})
}

// Close stops reconnecting and closes the socket
func (p *WSProvider) Close() error {
	p.cancel()

	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn != nil {
		p.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(constants.WebSocketWriteWait))
		p.writeMu.Unlock()
		_ = conn.Close()
	}

	<-p.done
	return nil
}
