package call

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commhub-backend/pkg/errors"
)

type stubSource struct {
	mu     sync.Mutex
	err    error
	opened int
	stops  int
}

func (s *stubSource) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (s *stubSource) Open(ctx context.Context) ([]webrtc.TrackLocal, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, nil, s.err
	}
	s.opened++

	audio, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "stub")
	if err != nil {
		return nil, nil, err
	}
	video, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "stub")
	if err != nil {
		return nil, nil, err
	}

	stop := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stops++
	}
	return []webrtc.TrackLocal{audio, video}, stop, nil
}

func (s *stubSource) stopped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type countingWriter struct {
	rtpWrites int
	rawWrites int
}

func (w *countingWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	w.rtpWrites++
	return header.MarshalSize() + len(payload), nil
}

func (w *countingWriter) Write(b []byte) (int, error) {
	w.rawWrites++
	return len(b), nil
}

func TestMediaAdapter_AcquireWrapsAudioOnly(t *testing.T) {
	source := &stubSource{}
	adapter := NewMediaAdapter(source)

	stream, err := adapter.Acquire(context.Background())
	require.NoError(t, err)
	require.Len(t, stream.Tracks(), 2)

	_, audioGated := stream.Tracks()[0].(*gatedTrack)
	_, videoGated := stream.Tracks()[1].(*gatedTrack)
	assert.True(t, audioGated)
	assert.False(t, videoGated)
	assert.True(t, stream.AudioEnabled())
	assert.Same(t, stream, adapter.Current())
}

func TestMediaAdapter_AcquireReleasesPrevious(t *testing.T) {
	source := &stubSource{}
	adapter := NewMediaAdapter(source)

	first, err := adapter.Acquire(context.Background())
	require.NoError(t, err)
	second, err := adapter.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 1, source.stopped())

	adapter.Release()
	adapter.Release()
	assert.Equal(t, 2, source.stopped())
	assert.Nil(t, adapter.Current())
}

func TestMediaAdapter_AcquireFailure(t *testing.T) {
	source := &stubSource{err: stderrors.New("device busy")}
	adapter := NewMediaAdapter(source)

	stream, err := adapter.Acquire(context.Background())
	assert.Nil(t, stream)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeMediaUnavailable))
	assert.Nil(t, adapter.Current())
}

func TestMediaAdapter_SetMicrophoneEnabled(t *testing.T) {
	adapter := NewMediaAdapter(&stubSource{})

	// nothing held
	adapter.SetMicrophoneEnabled(false)

	stream, err := adapter.Acquire(context.Background())
	require.NoError(t, err)

	adapter.SetMicrophoneEnabled(false)
	assert.False(t, stream.AudioEnabled())
	adapter.SetMicrophoneEnabled(true)
	assert.True(t, stream.AudioEnabled())
}

func TestLocalStream_StopOnce(t *testing.T) {
	stops := 0
	stream := newLocalStream(nil, nil, func() { stops++ })

	stream.Stop()
	stream.Stop()
	assert.Equal(t, 1, stops)
}

func TestGatedWriter(t *testing.T) {
	inner := &countingWriter{}
	stream := newLocalStream(nil, nil, nil)
	writer := &gatedWriter{TrackLocalWriter: inner, enabled: stream.audioEnabled}

	header := &rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: 1}
	payload := []byte{0xf8, 0xff, 0xfe}

	n, err := writer.WriteRTP(header, payload)
	require.NoError(t, err)
	assert.Equal(t, header.MarshalSize()+len(payload), n)
	assert.Equal(t, 1, inner.rtpWrites)

	stream.SetAudioEnabled(false)
	n, err = writer.WriteRTP(header, payload)
	require.NoError(t, err)
	assert.Equal(t, header.MarshalSize()+len(payload), n, "dropped packets still report success")
	_, err = writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.rtpWrites)
	assert.Equal(t, 0, inner.rawWrites)

	stream.SetAudioEnabled(true)
	_, err = writer.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.rawWrites)
}

func TestSyntheticSource_Open(t *testing.T) {
	source := NewSyntheticSource()

	tracks, stop, err := source.Open(context.Background())
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, webrtc.RTPCodecTypeAudio, tracks[0].Kind())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks[1].Kind())
	assert.Equal(t, tracks[0].StreamID(), tracks[1].StreamID())

	stop()
	stop()

	audioOnly := &SyntheticSource{}
	tracks, stop, err = audioOnly.Open(context.Background())
	require.NoError(t, err)
	assert.Len(t, tracks, 1)
	stop()
}

func TestSyntheticSource_OpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewSyntheticSource().Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
