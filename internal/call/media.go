package call

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
)

// MediaSource produces the local capture tracks for one call
type MediaSource interface {
	// Open starts capture. stop releases every track and must be idempotent.
	Open(ctx context.Context) (tracks []webrtc.TrackLocal, stop func(), err error)
	// RegisterCodecs declares the codecs the produced tracks are encoded with
	RegisterCodecs(m *webrtc.MediaEngine) error
}

// LocalStream is a captured set of tracks with a mutable microphone gate
type LocalStream struct {
	id           string
	source       MediaSource
	tracks       []webrtc.TrackLocal
	audioEnabled *atomic.Bool
	stop         func()
	stopOnce     sync.Once
}

func newLocalStream(source MediaSource, tracks []webrtc.TrackLocal, stop func()) *LocalStream {
	enabled := &atomic.Bool{}
	enabled.Store(true)

	gated := make([]webrtc.TrackLocal, 0, len(tracks))
	for _, t := range tracks {
		if t.Kind() == webrtc.RTPCodecTypeAudio {
			t = &gatedTrack{TrackLocal: t, enabled: enabled}
		}
		gated = append(gated, t)
	}

	return &LocalStream{
		id:           uuid.NewString(),
		source:       source,
		tracks:       gated,
		audioEnabled: enabled,
		stop:         stop,
	}
}

// ID identifies the capture session
func (s *LocalStream) ID() string { return s.id }

// Tracks returns the tracks to attach to a peer connection
func (s *LocalStream) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

// SetAudioEnabled opens or closes the microphone gate without renegotiation
func (s *LocalStream) SetAudioEnabled(enabled bool) {
	s.audioEnabled.Store(enabled)
}

// AudioEnabled reports whether audio packets are currently forwarded
func (s *LocalStream) AudioEnabled() bool {
	return s.audioEnabled.Load()
}

// RegisterCodecs registers the codecs of the underlying source
func (s *LocalStream) RegisterCodecs(m *webrtc.MediaEngine) error {
	if s.source == nil {
		return m.RegisterDefaultCodecs()
	}
	return s.source.RegisterCodecs(m)
}

// Stop ends capture; safe to call more than once
func (s *LocalStream) Stop() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// MediaAdapter owns at most one LocalStream at a time
type MediaAdapter struct {
	source MediaSource

	mu      sync.Mutex
	current *LocalStream
}

// NewMediaAdapter creates an adapter capturing from source
func NewMediaAdapter(source MediaSource) *MediaAdapter {
	return &MediaAdapter{source: source}
}

// Acquire captures a fresh stream, releasing any stream still held
func (a *MediaAdapter) Acquire(ctx context.Context) (*LocalStream, error) {
	a.Release()

	tracks, stop, err := a.source.Open(ctx)
	if err != nil {
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.MediaUnavailableError(err)
	}

	stream := newLocalStream(a.source, tracks, stop)

	a.mu.Lock()
	previous := a.current
	a.current = stream
	a.mu.Unlock()

	// lost a race with a concurrent Acquire
	if previous != nil {
		previous.Stop()
	}

	logger.Debug("Local media acquired",
		zap.String("stream_id", stream.ID()),
		zap.Int("tracks", len(tracks)))

	return stream, nil
}

// Release stops and forgets the held stream; no-op when nothing is held
func (a *MediaAdapter) Release() {
	a.mu.Lock()
	stream := a.current
	a.current = nil
	a.mu.Unlock()

	if stream != nil {
		stream.Stop()
		logger.Debug("Local media released", zap.String("stream_id", stream.ID()))
	}
}

// SetMicrophoneEnabled toggles the audio gate of the held stream
func (a *MediaAdapter) SetMicrophoneEnabled(enabled bool) {
	a.mu.Lock()
	stream := a.current
	a.mu.Unlock()

	if stream != nil {
		stream.SetAudioEnabled(enabled)
	}
}

// Current returns the held stream or nil
func (a *MediaAdapter) Current() *LocalStream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// gatedTrack wraps a local track so RTP written to it is dropped while the gate is closed
type gatedTrack struct {
	webrtc.TrackLocal
	enabled *atomic.Bool
}

func (g *gatedTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return g.TrackLocal.Bind(&gatedContext{TrackLocalContext: ctx, enabled: g.enabled})
}

type gatedContext struct {
	webrtc.TrackLocalContext
	enabled *atomic.Bool
}

func (c *gatedContext) WriteStream() webrtc.TrackLocalWriter {
	return &gatedWriter{TrackLocalWriter: c.TrackLocalContext.WriteStream(), enabled: c.enabled}
}

type gatedWriter struct {
	webrtc.TrackLocalWriter
	enabled *atomic.Bool
}

func (w *gatedWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	if !w.enabled.Load() {
		return header.MarshalSize() + len(payload), nil
	}
	return w.TrackLocalWriter.WriteRTP(header, payload)
}

func (w *gatedWriter) Write(b []byte) (int, error) {
	if !w.enabled.Load() {
		return len(b), nil
	}
	return w.TrackLocalWriter.Write(b)
}
