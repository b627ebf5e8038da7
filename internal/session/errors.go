package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrForbidden      = errors.New("admin role required")
	ErrNoLivePoll     = errors.New("no live poll")
	ErrStalePoll      = errors.New("poll is not the live poll")
	ErrNothingToShare = errors.New("no poll to share")
	ErrSessionClosed  = errors.New("session closed")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownEvent   = errors.New("unknown event")
)

// ProfanityError rejects a free-response answer. Terms are the offending
// words, reported back to the submitter only.
type ProfanityError struct {
	Terms []string
}

func (e *ProfanityError) Error() string {
	return fmt.Sprintf("answer contains banned words: %s", strings.Join(e.Terms, ", "))
}

// PersistError wraps a storage failure. The live poll is kept, so the
// action can be retried.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string   { return fmt.Sprintf("persistence failed: %v", e.Err) }
func (e *PersistError) Unwrap() error   { return e.Err }
func (e *PersistError) Retryable() bool { return true }
