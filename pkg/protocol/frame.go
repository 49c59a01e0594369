// Package protocol defines the wire format carried over the single
// WebSocket endpoint: a dotted-channel frame format shared by every
// subsystem's sub-router (§4.6).
package protocol

import "encoding/json"

// ProtocolVersion is bumped whenever the frame format or a channel's
// payload shape changes incompatibly.
const ProtocolVersion = 1

// FrameType distinguishes the three wire call styles.
type FrameType string

const (
	FrameRequest FrameType = "req"
	FrameResult  FrameType = "res"
	FrameEvent   FrameType = "event"
)

// Frame is the single message envelope exchanged over /ws.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    FrameType       `json:"type"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// WireError is the error shape carried on a "res" frame's error field.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent builds a fire-and-forget "event" frame for channel.
func NewEvent(channel string, payload interface{}) *Frame {
	raw, _ := json.Marshal(payload)
	return &Frame{Type: FrameEvent, Channel: channel, Payload: raw}
}

// NewResult builds a successful "res" frame replying to id.
func NewResult(id, channel string, payload interface{}) *Frame {
	raw, _ := json.Marshal(payload)
	return &Frame{ID: id, Type: FrameResult, Channel: channel, Payload: raw}
}

// NewErrorResult builds a failed "res" frame replying to id.
func NewErrorResult(id, channel, code, message string) *Frame {
	return &Frame{ID: id, Type: FrameResult, Channel: channel, Error: &WireError{Code: code, Message: message}}
}
