package signaling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commhub-backend/pkg/errors"
)

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(payload))
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestMemoryHub_RoutesByTopic(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()
	ctx := context.Background()

	a, b := &collector{}, &collector{}
	_, err := hub.Subscribe(ctx, "topic:a", a.handle)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "topic:b", b.handle)
	require.NoError(t, err)

	require.NoError(t, hub.Send(ctx, "topic:a", []byte("one")))
	require.NoError(t, hub.Send(ctx, "topic:a", []byte("two")))
	require.NoError(t, hub.Send(ctx, "topic:b", []byte("three")))
	require.NoError(t, hub.Send(ctx, "topic:none", []byte("lost")))

	require.Eventually(t, func() bool {
		return len(a.all()) == 2 && len(b.all()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, a.all())
	assert.Equal(t, []string{"three"}, b.all())
}

func TestBroadcastHub_DeliversEverywhere(t *testing.T) {
	hub := NewBroadcastHub()
	defer hub.Close()
	ctx := context.Background()

	a, b := &collector{}, &collector{}
	_, err := hub.Subscribe(ctx, "topic:a", a.handle)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "topic:b", b.handle)
	require.NoError(t, err)

	require.NoError(t, hub.Send(ctx, "topic:a", []byte("hello")))

	require.Eventually(t, func() bool {
		return len(a.all()) == 1 && len(b.all()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryHub_Unsubscribe(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()
	ctx := context.Background()

	c := &collector{}
	unsubscribe, err := hub.Subscribe(ctx, "topic", c.handle)
	require.NoError(t, err)

	require.NoError(t, hub.Send(ctx, "topic", []byte("before")))
	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()

	require.NoError(t, hub.Send(ctx, "topic", []byte("after")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"before"}, c.all())
}

func TestMemoryHub_HandlerMaySend(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()
	ctx := context.Background()

	reply := &collector{}
	_, err := hub.Subscribe(ctx, "reply", reply.handle)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, "request", func(payload []byte) {
		_ = hub.Send(ctx, "reply", append([]byte("re:"), payload...))
	})
	require.NoError(t, err)

	require.NoError(t, hub.Send(ctx, "request", []byte("ping")))
	require.Eventually(t, func() bool { return len(reply.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "re:ping", reply.all()[0])
}

func TestMemoryHub_PayloadIsCopied(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()
	ctx := context.Background()

	c := &collector{}
	_, err := hub.Subscribe(ctx, "topic", c.handle)
	require.NoError(t, err)

	payload := []byte("original")
	require.NoError(t, hub.Send(ctx, "topic", payload))
	copy(payload, "mutated!")

	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "original", c.all()[0])
}

func TestMemoryHub_Closed(t *testing.T) {
	hub := NewMemoryHub()
	require.NoError(t, hub.Close())

	err := hub.Send(context.Background(), "topic", []byte("x"))
	assert.True(t, errors.Is(err, errors.ErrCodeServiceUnavail))

	_, err = hub.Subscribe(context.Background(), "topic", func([]byte) {})
	assert.True(t, errors.Is(err, errors.ErrCodeServiceUnavail))
}

func TestMemoryHub_CancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Send(ctx, "topic", []byte("x")), context.Canceled)
	_, err := hub.Subscribe(ctx, "topic", func([]byte) {})
	assert.ErrorIs(t, err, context.Canceled)
}
