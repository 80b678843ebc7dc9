package call

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"commhub-backend/internal/domain"
	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
	"commhub-backend/pkg/metrics"
)

// SignalKind is the event name on the wire
type SignalKind string

const (
	SignalOffer     SignalKind = "call-offer"
	SignalAnswer    SignalKind = "call-answer"
	SignalCandidate SignalKind = "ice-candidate"
	SignalEnd       SignalKind = "call-end"
	SignalReject    SignalKind = "call-reject"
	SignalBusy      SignalKind = "call-busy"
)

// Signal is a decoded signaling message
type Signal struct {
	Kind        SignalKind
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	// Description is the offer or the answer
	Description *webrtc.SessionDescription
	Candidate   *webrtc.ICECandidateInit
	Caller      *domain.Profile
}

type envelope struct {
	Event   SignalKind      `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type signalPayload struct {
	Offer       *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer      *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Caller      *domain.ProfileResponse    `json:"caller,omitempty"`
	RecipientID uuid.UUID                  `json:"recipientId"`
	SenderID    uuid.UUID                  `json:"senderId"`
}

// EncodeSignal renders sig in its wire form
func EncodeSignal(sig Signal) ([]byte, error) {
	payload := signalPayload{
		Candidate:   sig.Candidate,
		RecipientID: sig.RecipientID,
		SenderID:    sig.SenderID,
	}
	switch sig.Kind {
	case SignalOffer:
		payload.Offer = sig.Description
		if sig.Caller != nil {
			payload.Caller = sig.Caller.ToResponse()
		}
	case SignalAnswer:
		payload.Answer = sig.Description
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: sig.Kind, Payload: raw})
}

// DecodeSignal parses and validates a wire message
func DecodeSignal(data []byte) (Signal, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Signal{}, fmt.Errorf("malformed envelope: %w", err)
	}

	var payload signalPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return Signal{}, fmt.Errorf("malformed %s payload: %w", env.Event, err)
		}
	}
	if payload.SenderID == uuid.Nil || payload.RecipientID == uuid.Nil {
		return Signal{}, fmt.Errorf("%s without sender or recipient", env.Event)
	}

	sig := Signal{
		Kind:        env.Event,
		SenderID:    payload.SenderID,
		RecipientID: payload.RecipientID,
		Candidate:   payload.Candidate,
	}

	switch env.Event {
	case SignalOffer:
		if payload.Offer == nil || payload.Caller == nil {
			return Signal{}, fmt.Errorf("call-offer without offer or caller")
		}
		sig.Description = payload.Offer
		sig.Caller = payload.Caller.ToProfile()
	case SignalAnswer:
		if payload.Answer == nil {
			return Signal{}, fmt.Errorf("call-answer without answer")
		}
		sig.Description = payload.Answer
	case SignalCandidate:
		if payload.Candidate == nil {
			return Signal{}, fmt.Errorf("ice-candidate without candidate")
		}
	case SignalEnd, SignalReject, SignalBusy:
	default:
		return Signal{}, fmt.Errorf("unknown event %q", env.Event)
	}

	return sig, nil
}

// Transport sends and receives signals for one user over a Provider
type Transport struct {
	provider Provider
	self     uuid.UUID
	metrics  *metrics.Metrics

	mu          sync.Mutex
	unsubscribe func()
}

// NewTransport creates a transport for self; m may be nil
func NewTransport(provider Provider, self uuid.UUID, m *metrics.Metrics) *Transport {
	return &Transport{provider: provider, self: self, metrics: m}
}

// Self returns the user this transport listens for
func (t *Transport) Self() uuid.UUID {
	return t.self
}

// Listen subscribes to the own topic and hands every valid signal addressed
// to self to handle. A previous subscription is replaced.
func (t *Transport) Listen(ctx context.Context, handle func(Signal)) error {
	unsubscribe, err := t.provider.Subscribe(ctx, Topic(t.self), func(data []byte) {
		sig, err := DecodeSignal(data)
		if err != nil {
			logger.Warn("Dropping malformed signal", zap.Error(err))
			return
		}
		// providers may fan out to everyone
		if sig.RecipientID != t.self {
			return
		}
		t.metrics.RecordSignal(string(sig.Kind), "received")
		handle(sig)
	})
	if err != nil {
		return errors.ServiceUnavailableError("Failed to subscribe to signaling topic").WithDetails(err.Error())
	}

	t.mu.Lock()
	previous := t.unsubscribe
	t.unsubscribe = unsubscribe
	t.mu.Unlock()

	if previous != nil {
		previous()
	}
	return nil
}

// Close drops the subscription
func (t *Transport) Close() {
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Send publishes sig on the recipient's topic, stamping self as sender
func (t *Transport) Send(ctx context.Context, sig Signal) error {
	sig.SenderID = t.self

	data, err := EncodeSignal(sig)
	if err != nil {
		return errors.SignalingSendError(string(sig.Kind), err)
	}
	if err := t.provider.Send(ctx, Topic(sig.RecipientID), data); err != nil {
		return errors.SignalingSendError(string(sig.Kind), err)
	}

	t.metrics.RecordSignal(string(sig.Kind), "sent")
	return nil
}

func (t *Transport) SendOffer(ctx context.Context, to uuid.UUID, caller *domain.Profile, offer webrtc.SessionDescription) error {
	return t.Send(ctx, Signal{Kind: SignalOffer, RecipientID: to, Caller: caller, Description: &offer})
}

func (t *Transport) SendAnswer(ctx context.Context, to uuid.UUID, answer webrtc.SessionDescription) error {
	return t.Send(ctx, Signal{Kind: SignalAnswer, RecipientID: to, Description: &answer})
}

func (t *Transport) SendCandidate(ctx context.Context, to uuid.UUID, candidate webrtc.ICECandidateInit) error {
	return t.Send(ctx, Signal{Kind: SignalCandidate, RecipientID: to, Candidate: &candidate})
}

func (t *Transport) SendEnd(ctx context.Context, to uuid.UUID) error {
	return t.Send(ctx, Signal{Kind: SignalEnd, RecipientID: to})
}

func (t *Transport) SendReject(ctx context.Context, to uuid.UUID) error {
	return t.Send(ctx, Signal{Kind: SignalReject, RecipientID: to})
}

func (t *Transport) SendBusy(ctx context.Context, to uuid.UUID) error {
	return t.Send(ctx, Signal{Kind: SignalBusy, RecipientID: to})
}
