//go:build mediadevices

package call

import (
	"context"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
)

// DeviceSource captures the local camera and microphone
type DeviceSource struct {
	codecSelector *mediadevices.CodecSelector
}

// NewDeviceSource prepares VP8/Opus encoders for hardware capture
func NewDeviceSource() (*DeviceSource, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, errors.MediaUnavailableError(err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, errors.MediaUnavailableError(err)
	}

	return &DeviceSource{
		codecSelector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (s *DeviceSource) RegisterCodecs(m *webrtc.MediaEngine) error {
	s.codecSelector.Populate(m)
	return nil
}

// Open asks for video+audio and degrades to a single kind when one device is missing
func (s *DeviceSource) Open(ctx context.Context) ([]webrtc.TrackLocal, func(), error) {
	attempts := []struct {
		video, audio bool
		label        string
	}{
		{true, true, "video+audio"},
		{true, false, "video-only"},
		{false, true, "audio-only"},
	}

	var lastErr error
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		constraints := mediadevices.MediaStreamConstraints{Codec: s.codecSelector}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			logger.Warn("Media capture attempt failed",
				zap.String("attempt", a.label),
				zap.Error(err))
			lastErr = err
			continue
		}

		captured := stream.GetTracks()
		tracks := make([]webrtc.TrackLocal, 0, len(captured))
		for _, t := range captured {
			t.OnEnded(func(err error) {
				if err != nil {
					logger.Warn("Local track ended", zap.String("track_id", t.ID()), zap.Error(err))
				}
			})
			tracks = append(tracks, t)
		}

		var once sync.Once
		stop := func() {
			once.Do(func() {
				for _, t := range captured {
					t.Close()
				}
			})
		}

		logger.Info("Local media captured",
			zap.String("attempt", a.label),
			zap.Int("tracks", len(tracks)))
		return tracks, stop, nil
	}

	return nil, nil, errors.MediaUnavailableError(lastErr)
}
