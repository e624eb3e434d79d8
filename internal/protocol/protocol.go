package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manpreetbhatti/inkboard/internal/shape"
)

// Event names a message kind on the wire
type Event string

const (
	// Relayed to everyone but the sender, tagged with the sender's id
	EventCursorUpdate Event = "cursor-update"

	// Full canvas snapshot, relayed verbatim to everyone but the sender
	EventShapesUpdate Event = "shapes-update"

	// Sent by the server to the whole room after every join and leave
	EventParticipantCount Event = "participant-count"

	// Sent by the server when a participant disconnects
	EventParticipantLeft Event = "participant-left"
)

var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrServerOnly     = errors.New("event may only be sent by the server")
	ErrMissingPayload = errors.New("missing payload")
)

// Envelope is a single text frame
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Cursor is the cursor-update payload. ID is filled in by the relay.
type Cursor struct {
	ID    string  `json:"id,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
	Name  string  `json:"name"`
}

func Encode(event Event, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses a frame and checks that the event is one we know about.
func Decode(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, ErrEmptyMessage
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Event.Known() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return env, nil
}

// ValidateInbound accepts only what a participant is allowed to send.
func ValidateInbound(env Envelope) error {
	switch env.Event {
	case EventCursorUpdate, EventShapesUpdate:
		if len(env.Data) == 0 {
			return fmt.Errorf("%w for %s", ErrMissingPayload, env.Event)
		}
		return nil
	case EventParticipantCount, EventParticipantLeft:
		return fmt.Errorf("%w: %s", ErrServerOnly, env.Event)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func (e Event) Known() bool {
	switch e {
	case EventCursorUpdate, EventShapesUpdate, EventParticipantCount, EventParticipantLeft:
		return true
	}
	return false
}

func (env Envelope) Cursor() (Cursor, error) {
	var c Cursor
	err := json.Unmarshal(env.Data, &c)
	return c, err
}

func (env Envelope) Shapes() (shape.Snapshot, error) {
	var s shape.Snapshot
	if err := json.Unmarshal(env.Data, &s); err != nil {
		return nil, err
	}
	if s == nil {
		s = shape.Snapshot{}
	}
	return s, nil
}

func (env Envelope) Count() (int, error) {
	var n int
	err := json.Unmarshal(env.Data, &n)
	return n, err
}

func (env Envelope) ParticipantID() (string, error) {
	var id string
	err := json.Unmarshal(env.Data, &id)
	return id, err
}
