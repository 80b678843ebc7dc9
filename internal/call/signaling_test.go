package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commhub-backend/internal/domain"
	"commhub-backend/internal/signaling"
	"commhub-backend/pkg/errors"
)

func TestEncodeSignal_WireFormat(t *testing.T) {
	caller := &domain.Profile{ID: uuid.New(), Username: "alice", Email: "alice@example.com", Role: domain.RoleUser, Status: domain.ProfileActive}
	recipient := uuid.New()
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}

	data, err := EncodeSignal(Signal{
		Kind:        SignalOffer,
		SenderID:    caller.ID,
		RecipientID: recipient,
		Caller:      caller,
		Description: &offer,
	})
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "call-offer", wire["event"])

	payload := wire["payload"].(map[string]interface{})
	assert.Equal(t, recipient.String(), payload["recipientId"])
	assert.Equal(t, caller.ID.String(), payload["senderId"])
	assert.Equal(t, "offer", payload["offer"].(map[string]interface{})["type"])
	assert.Equal(t, "alice", payload["caller"].(map[string]interface{})["username"])
	assert.NotContains(t, payload, "answer")
	assert.NotContains(t, payload, "candidate")
}

func TestDecodeSignal_RoundTripsEachKind(t *testing.T) {
	sender, recipient := uuid.New(), uuid.New()
	caller := &domain.Profile{ID: sender, Username: "alice"}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	index := uint16(0)
	candidate := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 192.0.2.1 5000 typ host", SDPMLineIndex: &index}

	tests := []struct {
		name  string
		sig   Signal
		check func(t *testing.T, got Signal)
	}{
		{
			name: "offer",
			sig:  Signal{Kind: SignalOffer, Caller: caller, Description: &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}},
			check: func(t *testing.T, got Signal) {
				require.NotNil(t, got.Caller)
				assert.Equal(t, sender, got.Caller.ID)
				assert.Equal(t, webrtc.SDPTypeOffer, got.Description.Type)
			},
		},
		{
			name: "answer",
			sig:  Signal{Kind: SignalAnswer, Description: &answer},
			check: func(t *testing.T, got Signal) {
				assert.Equal(t, answer, *got.Description)
			},
		},
		{
			name: "candidate",
			sig:  Signal{Kind: SignalCandidate, Candidate: &candidate},
			check: func(t *testing.T, got Signal) {
				require.NotNil(t, got.Candidate)
				assert.Equal(t, candidate.Candidate, got.Candidate.Candidate)
				require.NotNil(t, got.Candidate.SDPMLineIndex)
				assert.Equal(t, uint16(0), *got.Candidate.SDPMLineIndex)
			},
		},
		{name: "end", sig: Signal{Kind: SignalEnd}},
		{name: "reject", sig: Signal{Kind: SignalReject}},
		{name: "busy", sig: Signal{Kind: SignalBusy}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.sig.SenderID = sender
			tt.sig.RecipientID = recipient

			data, err := EncodeSignal(tt.sig)
			require.NoError(t, err)

			got, err := DecodeSignal(data)
			require.NoError(t, err)
			assert.Equal(t, tt.sig.Kind, got.Kind)
			assert.Equal(t, sender, got.SenderID)
			assert.Equal(t, recipient, got.RecipientID)
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestDecodeSignal_Rejects(t *testing.T) {
	sender, recipient := uuid.New(), uuid.New()

	tests := []struct {
		name string
		wire string
	}{
		{"not json", `{"event":`},
		{"unknown event", `{"event":"call-hold","payload":{"senderId":"` + sender.String() + `","recipientId":"` + recipient.String() + `"}}`},
		{"missing sender", `{"event":"call-end","payload":{"recipientId":"` + recipient.String() + `"}}`},
		{"missing recipient", `{"event":"call-end","payload":{"senderId":"` + sender.String() + `"}}`},
		{"offer without caller", `{"event":"call-offer","payload":{"offer":{"type":"offer","sdp":"v=0"},"senderId":"` + sender.String() + `","recipientId":"` + recipient.String() + `"}}`},
		{"answer without answer", `{"event":"call-answer","payload":{"senderId":"` + sender.String() + `","recipientId":"` + recipient.String() + `"}}`},
		{"candidate without candidate", `{"event":"ice-candidate","payload":{"senderId":"` + sender.String() + `","recipientId":"` + recipient.String() + `"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSignal([]byte(tt.wire))
			assert.Error(t, err)
		})
	}
}

type failingProvider struct{}

func (failingProvider) Subscribe(ctx context.Context, topic string, handler func([]byte)) (func(), error) {
	return nil, assert.AnError
}

func (failingProvider) Send(ctx context.Context, topic string, payload []byte) error {
	return assert.AnError
}

func TestTransport_FiltersByRecipient(t *testing.T) {
	// every subscriber sees every message, like a shared channel
	hub := signaling.NewBroadcastHub()
	defer hub.Close()

	alice, bob := uuid.New(), uuid.New()
	aliceTransport := NewTransport(hub, alice, nil)
	bobTransport := NewTransport(hub, bob, nil)

	var mu sync.Mutex
	var received []Signal
	require.NoError(t, bobTransport.Listen(context.Background(), func(sig Signal) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, sig)
	}))
	defer bobTransport.Close()

	// addressed to someone else
	require.NoError(t, aliceTransport.SendEnd(context.Background(), uuid.New()))
	// malformed
	require.NoError(t, hub.Send(context.Background(), Topic(bob), []byte(`garbage`)))
	require.NoError(t, aliceTransport.SendReject(context.Background(), bob))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, SignalReject, received[0].Kind)
	assert.Equal(t, alice, received[0].SenderID)
}

func TestTransport_SendStampsSender(t *testing.T) {
	hub := signaling.NewMemoryHub()
	defer hub.Close()

	self, to := uuid.New(), uuid.New()
	got := make(chan Signal, 1)
	_, err := hub.Subscribe(context.Background(), Topic(to), func(data []byte) {
		sig, err := DecodeSignal(data)
		if err == nil {
			got <- sig
		}
	})
	require.NoError(t, err)

	transport := NewTransport(hub, self, nil)
	require.NoError(t, transport.Send(context.Background(), Signal{Kind: SignalBusy, SenderID: uuid.New(), RecipientID: to}))

	select {
	case sig := <-got:
		assert.Equal(t, self, sig.SenderID)
		assert.Equal(t, SignalBusy, sig.Kind)
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestTransport_ProviderFailures(t *testing.T) {
	transport := NewTransport(failingProvider{}, uuid.New(), nil)

	err := transport.SendEnd(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeSignalingSendFailure))

	err = transport.Listen(context.Background(), func(Signal) {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeServiceUnavail))
}

func TestTopic(t *testing.T) {
	id := uuid.MustParse("8b7a3c1e-6f1d-4a55-9b6f-0c2d8e1f4a10")
	assert.Equal(t, "webrtc-signaling:8b7a3c1e-6f1d-4a55-9b6f-0c2d8e1f4a10", Topic(id))
}
