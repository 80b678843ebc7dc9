package softphone

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commhub-backend/internal/call"
	"commhub-backend/internal/domain"
	"commhub-backend/pkg/errors"
)

type sinkEvent struct {
	name string
	data interface{}
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) Broadcast(event string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{name: event, data: data})
}

func (s *recordingSink) last(t *testing.T) sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.events)
	return s.events[len(s.events)-1]
}

func TestListener_ForwardsLifecycle(t *testing.T) {
	sink := &recordingSink{}
	l := NewListener(sink)

	l.OnStatusChange(call.StatusRinging)
	ev := sink.last(t)
	assert.Equal(t, EventStatus, ev.name)
	assert.Equal(t, call.StatusRinging, ev.data.(map[string]interface{})["status"])

	caller := &domain.Profile{ID: uuid.New(), Username: "bob"}
	l.OnIncomingCall(call.IncomingCall{Caller: caller})
	ev = sink.last(t)
	assert.Equal(t, EventIncomingCall, ev.name)
	assert.Equal(t, caller, ev.data.(call.IncomingCall).Caller)

	l.OnDurationTick(7)
	ev = sink.last(t)
	assert.Equal(t, EventDuration, ev.name)
	assert.Equal(t, 7, ev.data.(map[string]interface{})["seconds"])

	l.OnCallEnded(call.EndRemoteHangup)
	ev = sink.last(t)
	assert.Equal(t, EventCallEnded, ev.name)
	assert.Equal(t, call.EndRemoteHangup, ev.data.(map[string]interface{})["reason"])
}

func TestListener_OnError(t *testing.T) {
	sink := &recordingSink{}
	l := NewListener(sink)

	l.OnError(errors.CallBusyError())
	data := sink.last(t).data.(map[string]interface{})
	assert.Equal(t, errors.CallBusyError().Code, data["code"])

	l.OnError(fmt.Errorf("plain failure"))
	data = sink.last(t).data.(map[string]interface{})
	assert.Equal(t, "plain failure", data["message"])
	assert.NotContains(t, data, "code")
}
