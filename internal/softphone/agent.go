package softphone

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"commhub-backend/internal/call"
	apperrors "commhub-backend/pkg/errors"
	"commhub-backend/pkg/logger"
)

// UI event names
const (
	EventStatus       = "status"
	EventIncomingCall = "incoming_call"
	EventLocalStream  = "local_stream"
	EventRemoteStream = "remote_stream"
	EventDuration     = "duration"
	EventCallEnded    = "call_ended"
	EventError        = "error"
)

// EventSink receives UI events
type EventSink interface {
	Broadcast(event string, data interface{})
}

// Listener forwards controller callbacks to the UI as JSON events and
// consumes remote tracks so the receive buffers never fill up.
type Listener struct {
	sink EventSink
	log  *zap.Logger
}

var _ call.Listener = (*Listener)(nil)

// NewListener creates a listener publishing to sink
func NewListener(sink EventSink) *Listener {
	return &Listener{sink: sink, log: logger.With(zap.String("component", "softphone"))}
}

func (l *Listener) OnStatusChange(status call.Status) {
	l.sink.Broadcast(EventStatus, map[string]interface{}{"status": status})
}

func (l *Listener) OnIncomingCall(incoming call.IncomingCall) {
	l.sink.Broadcast(EventIncomingCall, incoming)
}

func (l *Listener) OnLocalStreamReady(stream *call.LocalStream) {
	l.sink.Broadcast(EventLocalStream, map[string]interface{}{
		"stream_id": stream.ID(),
		"tracks":    len(stream.Tracks()),
	})
}

func (l *Listener) OnRemoteStreamReady(track *webrtc.TrackRemote) {
	l.sink.Broadcast(EventRemoteStream, map[string]interface{}{
		"track_id":  track.ID(),
		"stream_id": track.StreamID(),
		"kind":      track.Kind().String(),
		"codec":     track.Codec().MimeType,
	})
	go l.drain(track)
}

func (l *Listener) OnDurationTick(seconds int) {
	l.sink.Broadcast(EventDuration, map[string]interface{}{"seconds": seconds})
}

func (l *Listener) OnCallEnded(reason call.EndReason) {
	l.sink.Broadcast(EventCallEnded, map[string]interface{}{"reason": reason})
}

func (l *Listener) OnError(err error) {
	data := map[string]interface{}{"message": err.Error()}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		data["code"] = appErr.Code
		data["message"] = appErr.Message
	}
	l.sink.Broadcast(EventError, data)
}

// drain reads a remote track until the connection closes
func (l *Listener) drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	var packets, bytes int
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.log.Debug("Remote track closed", zap.String("track_id", track.ID()), zap.Error(err))
			}
			break
		}
		packets++
		bytes += n
	}
	l.log.Info("Remote track finished",
		zap.String("track_id", track.ID()),
		zap.String("kind", track.Kind().String()),
		zap.Int("packets", packets),
		zap.Int("bytes", bytes))
}

// KeepSignedIn refreshes the API tokens every interval until ctx is done
func KeepSignedIn(ctx context.Context, client *Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Refresh(ctx); err != nil {
				logger.Warn("Failed to refresh softphone session", zap.Error(err))
			}
		}
	}
}
