package pubsub

import (
	"encoding/json"
	"fmt"
)

// Envelope is one websocket frame in either direction.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outgoing struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Encode serializes an outgoing event.
func Encode(eventType string, payload any) ([]byte, error) {
	b, err := json.Marshal(outgoing{Type: eventType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return b, nil
}

// Decode parses an incoming frame. The payload is left raw for the handler
// registered under Type.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("malformed frame: missing type")
	}
	return env, nil
}

// Client -> server events.
const (
	EventStartPoll      = "poll/start"
	EventAnswerPoll     = "poll/answer"
	EventUpvoteAnswer   = "poll/upvote"
	EventShareResults   = "poll/results"
	EventEndPoll        = "poll/end"
	EventDeletePoll     = "poll/delete"
	EventDeleteLivePoll = "poll/deleteLive"
)

// Server -> client events. poll/start, poll/results, poll/end, poll/delete
// and poll/deleteLive reuse the names above.
const (
	EventCurrentPoll = "poll/current"
	EventPollUpdates = "poll/updates"
	EventError       = "error"
)

type ErrorPayload struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Terms     []string `json:"terms,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}
