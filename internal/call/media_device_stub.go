//go:build !mediadevices

package call

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"commhub-backend/pkg/errors"
)

var errNoDeviceSupport = fmt.Errorf("built without the mediadevices tag")

// DeviceSource is unavailable in this build
type DeviceSource struct{}

// NewDeviceSource always fails; rebuild with -tags mediadevices for camera/microphone capture
func NewDeviceSource() (*DeviceSource, error) {
	return nil, errors.MediaUnavailableError(errNoDeviceSupport)
}

func (s *DeviceSource) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (s *DeviceSource) Open(context.Context) ([]webrtc.TrackLocal, func(), error) {
	return nil, nil, errors.MediaUnavailableError(errNoDeviceSupport)
}
