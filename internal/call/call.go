// Package call coordinates one-to-one voice/video calls: it captures local
// media, negotiates a peer-to-peer connection with pion/webrtc and exchanges
// the session descriptions and network candidates over a pub/sub signaling
// provider.
package call

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/constants"
)

// Status is the lifecycle state of the call session
type Status string

const (
	StatusIdle    Status = "idle"
	StatusCalling Status = "calling"
	StatusRinging Status = "ringing"
	StatusInCall  Status = "in_call"
)

// EndReason explains why a session went back to Idle
type EndReason string

const (
	EndLocalHangup  EndReason = "local_hangup"
	EndRemoteHangup EndReason = "remote_hangup"
	EndDeclined     EndReason = "declined" // we rejected an incoming call
	EndRejected     EndReason = "rejected" // the callee rejected our call
	EndBusy         EndReason = "busy"     // the callee was on another call
	EndMissed       EndReason = "missed"   // the caller gave up while ringing
	EndTimeout      EndReason = "timeout"  // nobody answered our call
	EndFailed       EndReason = "failed"   // media or negotiation failure
	EndShutdown     EndReason = "shutdown" // controller closed
)

// IncomingCall is the offer queued while the session rings
type IncomingCall struct {
	Caller     *domain.Profile           `json:"caller"`
	Offer      webrtc.SessionDescription `json:"-"`
	ReceivedAt time.Time                 `json:"received_at"`
}

// Session is a point-in-time copy of the controller state
type Session struct {
	Status      Status          `json:"status"`
	LocalParty  uuid.UUID       `json:"local_party"`
	RemoteParty *domain.Profile `json:"remote_party,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	Duration    int             `json:"duration"`
	Muted       bool            `json:"muted"`
	Pending     *IncomingCall   `json:"pending,omitempty"`
}

// Listener receives session events. Implementations must be safe for
// concurrent use; callbacks are never invoked while controller locks are held.
type Listener interface {
	OnStatusChange(status Status)
	OnIncomingCall(incoming IncomingCall)
	OnLocalStreamReady(stream *LocalStream)
	OnRemoteStreamReady(track *webrtc.TrackRemote)
	OnDurationTick(seconds int)
	OnCallEnded(reason EndReason)
	OnError(err error)
}

// NopListener ignores every event. Embed it to implement a subset of Listener.
type NopListener struct{}

func (NopListener) OnStatusChange(Status)                   {}
func (NopListener) OnIncomingCall(IncomingCall)             {}
func (NopListener) OnLocalStreamReady(*LocalStream)         {}
func (NopListener) OnRemoteStreamReady(*webrtc.TrackRemote) {}
func (NopListener) OnDurationTick(int)                      {}
func (NopListener) OnCallEnded(EndReason)                   {}
func (NopListener) OnError(error)                           {}

// Directory resolves callable profiles
type Directory interface {
	GetActiveProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
}

// Provider is a topic based publish/subscribe primitive.
// Delivery is best-effort and at-most-once; handlers for one subscription
// are invoked sequentially in publish order.
type Provider interface {
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (unsubscribe func(), err error)
	Send(ctx context.Context, topic string, payload []byte) error
}

// Topic returns the signaling topic owned by userID
func Topic(userID uuid.UUID) string {
	return constants.SignalingTopicPrefix + userID.String()
}

// notifier collects listener callbacks so they can be fired after locks are released
type notifier []func()

func (n *notifier) add(f func()) {
	*n = append(*n, f)
}

func (n *notifier) fire() {
	for _, f := range *n {
		f()
	}
	*n = nil
}
