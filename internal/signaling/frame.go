package signaling

import "encoding/json"

// FrameType identifies a relay protocol frame
type FrameType string

const (
	// client to relay
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FramePublish     FrameType = "publish"

	// relay to client
	FrameMessage FrameType = "message"
	FrameError   FrameType = "error"
)

// Frame is one JSON text message on the relay WebSocket
type Frame struct {
	Type    FrameType       `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}
