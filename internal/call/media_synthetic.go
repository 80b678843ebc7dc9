package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"

	"commhub-backend/pkg/logger"
)

const syntheticFrameInterval = 20 * time.Millisecond

// opusSilence is a single 20 ms Opus frame of digital silence
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticSource produces an Opus track fed with silence and a VP8 video
// track without frames. It needs no hardware and is what headless agents use.
type SyntheticSource struct {
	// Video adds the VP8 track
	Video bool
}

// NewSyntheticSource returns a source with audio and video tracks
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{Video: true}
}

func (s *SyntheticSource) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (s *SyntheticSource) Open(ctx context.Context) ([]webrtc.TrackLocal, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	streamID := "synthetic-" + uuid.NewString()

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, nil, err
	}
	tracks := []webrtc.TrackLocal{audio}

	if s.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", streamID,
		)
		if err != nil {
			return nil, nil, err
		}
		tracks = append(tracks, video)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pumpSilence(audio, done)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}

	return tracks, stop, nil
}

// pumpSilence keeps the audio track alive so the remote side sees RTP flowing
func pumpSilence(track *webrtc.TrackLocalStaticSample, done <-chan struct{}) {
	ticker := time.NewTicker(syntheticFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// writes before the track is bound are discarded by pion
			if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: syntheticFrameInterval}); err != nil {
				logger.Debug("Synthetic audio write failed", zap.Error(err))
			}
		}
	}
}
