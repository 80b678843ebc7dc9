// Package signaling provides the pub/sub providers the call controller
// exchanges signals over: an in-process hub, Redis Pub/Sub and a WebSocket
// client for the signaling relay.
package signaling

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
)

const subscriberBuffer = 256

// MemoryHub is an in-process provider. Each subscription has its own
// delivery goroutine so handlers never run on the publisher's goroutine.
type MemoryHub struct {
	broadcast bool

	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	topic   string
	queue   chan []byte
	done    chan struct{}
	once    sync.Once
	handler func([]byte)
}

// NewMemoryHub returns a hub delivering each message to the subscribers of its topic
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[*memorySub]struct{})}
}

// NewBroadcastHub returns a hub delivering every message to every subscriber,
// like a shared channel that relies on receivers to filter
func NewBroadcastHub() *MemoryHub {
	h := NewMemoryHub()
	h.broadcast = true
	return h
}

// Subscribe registers handler for topic
func (h *MemoryHub) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &memorySub{
		topic:   topic,
		queue:   make(chan []byte, subscriberBuffer),
		done:    make(chan struct{}),
		handler: handler,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errors.ServiceUnavailableError("Signaling hub is closed")
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*memorySub]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	h.mu.Unlock()

	go sub.run()

	return func() { h.remove(sub) }, nil
}

// Send queues payload for every matching subscriber. A full subscriber queue drops the message.
func (h *MemoryHub) Send(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return errors.ServiceUnavailableError("Signaling hub is closed")
	}

	for subTopic, subs := range h.subs {
		if !h.broadcast && subTopic != topic {
			continue
		}
		for sub := range subs {
			data := make([]byte, len(payload))
			copy(data, payload)
			select {
			case sub.queue <- data:
			case <-sub.done:
			default:
				logger.Warn("Signaling subscriber queue full, dropping message", zap.String("topic", subTopic))
			}
		}
	}
	return nil
}

// Close stops every subscription
func (h *MemoryHub) Close() error {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]map[*memorySub]struct{})
	h.mu.Unlock()

	for _, set := range subs {
		for sub := range set {
			sub.stop()
		}
	}
	return nil
}

func (h *MemoryHub) remove(sub *memorySub) {
	h.mu.Lock()
	if set, ok := h.subs[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.topic)
		}
	}
	h.mu.Unlock()

	sub.stop()
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *memorySub) run() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.queue:
			s.handler(data)
		}
	}
}
