package event

import (
	"context"
	"errors"
)

// ErrMalformedEvent marks a message that could not be decoded. The message
// is already committed, so consumers skip it and keep reading.
var ErrMalformedEvent = errors.New("malformed poll event")

type Consumer interface {
	ReadEvent(ctx context.Context) (PollEvent, error)
	Close() error
}
