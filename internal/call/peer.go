package call

import (
	"context"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
)

// PeerEventKind discriminates PeerEvent
type PeerEventKind int

const (
	// EventLocalCandidate carries a locally gathered network candidate to trickle to the remote side
	EventLocalCandidate PeerEventKind = iota
	// EventRemoteStream carries a remote media track
	EventRemoteStream
	// EventConnectionState carries a connection state transition
	EventConnectionState
)

func (k PeerEventKind) String() string {
	switch k {
	case EventLocalCandidate:
		return "local_candidate"
	case EventRemoteStream:
		return "remote_stream"
	case EventConnectionState:
		return "connection_state"
	}
	return "unknown"
}

// PeerEvent is emitted by an open peer connection
type PeerEvent struct {
	Kind      PeerEventKind
	Candidate *webrtc.ICECandidateInit
	Track     *webrtc.TrackRemote
	State     webrtc.PeerConnectionState
}

// PeerConfig configures new peer connections
type PeerConfig struct {
	// ICEServers are STUN/TURN URLs used for rendezvous
	ICEServers []string
	// IncludeLoopback gathers loopback candidates, needed when both peers share a host
	IncludeLoopback bool
	// Timeouts for ICE disconnected/failed detection and keepalives
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

// DefaultPeerConfig returns the public Google STUN servers and generous ICE
// timeouts so a short NAT hiccup does not end the call.
func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		ICEServers:          []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"},
		DisconnectedTimeout: 30 * time.Second,
		FailedTimeout:       120 * time.Second,
		KeepAliveInterval:   2 * time.Second,
	}
}

// MediaReleaser releases captured local media
type MediaReleaser interface {
	Release()
}

// PeerManager owns at most one peer connection at a time
type PeerManager struct {
	cfg   PeerConfig
	media MediaReleaser

	mu   sync.Mutex
	conn *peerConn
}

// NewPeerManager creates a manager; media is released whenever the connection is closed
func NewPeerManager(cfg PeerConfig, media MediaReleaser) *PeerManager {
	return &PeerManager{cfg: cfg, media: media}
}

// peerConn is one pion connection plus its event plumbing. pion callbacks
// push into in; a forwarder moves events to out and closes out on shutdown.
type peerConn struct {
	pc   *webrtc.PeerConnection
	in   chan PeerEvent
	out  chan PeerEvent
	done chan struct{}

	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newPeerConn(pc *webrtc.PeerConnection) *peerConn {
	return &peerConn{
		pc:   pc,
		in:   make(chan PeerEvent),
		out:  make(chan PeerEvent, 16),
		done: make(chan struct{}),
	}
}

func (c *peerConn) emit(ev PeerEvent) {
	select {
	case c.in <- ev:
	case <-c.done:
	}
}

func (c *peerConn) forward() {
	defer close(c.out)
	for {
		select {
		case ev := <-c.in:
			select {
			case c.out <- ev:
			case <-c.done:
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *peerConn) close() {
	close(c.done)
	if err := c.pc.Close(); err != nil {
		logger.Debug("Peer connection close returned error", zap.Error(err))
	}
}

// Open builds a new peer connection for stream, closing any previous one.
// The returned channel is closed when the connection is closed.
func (m *PeerManager) Open(ctx context.Context, stream *LocalStream) (<-chan PeerEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		m.conn.close()
		m.conn = nil
	}

	mediaEngine := &webrtc.MediaEngine{}
	var err error
	if stream != nil {
		err = stream.RegisterCodecs(mediaEngine)
	} else {
		err = mediaEngine.RegisterDefaultCodecs()
	}
	if err != nil {
		return nil, errors.NegotiationError("Failed to register codecs", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, errors.NegotiationError("Failed to register interceptors", err)
	}

	se := webrtc.SettingEngine{}
	if m.cfg.DisconnectedTimeout > 0 {
		se.SetICETimeouts(m.cfg.DisconnectedTimeout, m.cfg.FailedTimeout, m.cfg.KeepAliveInterval)
	}
	if m.cfg.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	config := webrtc.Configuration{}
	if len(m.cfg.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: m.cfg.ICEServers}}
	}

	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, errors.NegotiationError("Failed to create peer connection", err)
	}

	var audio, video bool
	if stream != nil {
		for _, track := range stream.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				_ = pc.Close()
				return nil, errors.NegotiationError("Failed to attach local track", err)
			}
			switch track.Kind() {
			case webrtc.RTPCodecTypeAudio:
				audio = true
			case webrtc.RTPCodecTypeVideo:
				video = true
			}
		}
	}
	// keep both m-lines so the remote side can still send what we cannot capture
	if !video {
		addRecvOnlyTransceiver(pc, webrtc.RTPCodecTypeVideo)
	}
	if !audio {
		addRecvOnlyTransceiver(pc, webrtc.RTPCodecTypeAudio)
	}

	conn := newPeerConn(pc)

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		conn.emit(PeerEvent{Kind: EventLocalCandidate, Candidate: &init})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Info("Remote track received",
			zap.String("kind", track.Kind().String()),
			zap.String("codec", track.Codec().MimeType))
		conn.emit(PeerEvent{Kind: EventRemoteStream, Track: track})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("Peer connection state changed", zap.String("state", state.String()))
		conn.emit(PeerEvent{Kind: EventConnectionState, State: state})
	})

	m.conn = conn
	go conn.forward()

	return conn.out, nil
}

func addRecvOnlyTransceiver(pc *webrtc.PeerConnection, kind webrtc.RTPCodecType) {
	if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		logger.Warn("Failed to add receive-only transceiver",
			zap.String("kind", kind.String()),
			zap.Error(err))
	}
}

// CreateOffer creates and commits the local offer
func (m *PeerManager) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return webrtc.SessionDescription{}, errors.NegotiationError("No peer connection to create an offer on", nil)
	}

	offer, err := m.conn.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, errors.NegotiationError("Failed to create offer", err)
	}
	if err := m.conn.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, errors.NegotiationError("Failed to commit offer", err)
	}
	return offer, nil
}

// CreateAnswer commits the remote offer then creates and commits the answer
func (m *PeerManager) CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return webrtc.SessionDescription{}, errors.NegotiationError("No peer connection to answer on", nil)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, errors.NegotiationError("Remote description is not an offer", nil)
	}

	if err := m.conn.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, errors.NegotiationError("Failed to apply remote offer", err)
	}
	m.flushPendingLocked()

	answer, err := m.conn.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, errors.NegotiationError("Failed to create answer", err)
	}
	if err := m.conn.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, errors.NegotiationError("Failed to commit answer", err)
	}
	return answer, nil
}

// ApplyAnswer commits the remote answer to our offer
func (m *PeerManager) ApplyAnswer(answer webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		logger.Debug("Answer arrived without an open peer connection")
		return errors.StaleSignalError("No peer connection for answer")
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		return errors.NegotiationError("Remote description is not an answer", nil)
	}

	if err := m.conn.pc.SetRemoteDescription(answer); err != nil {
		return errors.NegotiationError("Failed to apply remote answer", err)
	}
	m.flushPendingLocked()
	return nil
}

// ApplyRemoteCandidate adds a remote network candidate, holding it until the
// remote description is known
func (m *PeerManager) ApplyRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		logger.Debug("Candidate arrived without an open peer connection")
		return errors.StaleSignalError("No peer connection for candidate")
	}

	if !m.conn.remoteSet {
		m.conn.pending = append(m.conn.pending, candidate)
		return nil
	}

	if err := m.conn.pc.AddICECandidate(candidate); err != nil {
		logger.Warn("Rejected remote candidate", zap.String("candidate", candidate.Candidate), zap.Error(err))
		return errors.NegotiationError("Invalid remote candidate", err)
	}
	return nil
}

func (m *PeerManager) flushPendingLocked() {
	m.conn.remoteSet = true
	pending := m.conn.pending
	m.conn.pending = nil

	for _, candidate := range pending {
		if err := m.conn.pc.AddICECandidate(candidate); err != nil {
			logger.Warn("Rejected buffered remote candidate", zap.String("candidate", candidate.Candidate), zap.Error(err))
		}
	}
}

// Close tears down the connection and releases local media. Safe to call repeatedly.
func (m *PeerManager) Close() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.close()
		logger.Debug("Peer connection closed")
	}
	if m.media != nil {
		m.media.Release()
	}
}

// IsOpen reports whether a connection is currently held
func (m *PeerManager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}
