package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Guizzs26/live_polling_system/internal/model"
)

type validator interface {
	Validate() error
}

type StartPollPayload struct {
	Text          string         `json:"text"`
	Type          model.PollType `json:"type"`
	Options       []string       `json:"options"`
	CorrectAnswer string         `json:"correctAnswer"`
}

func (p *StartPollPayload) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if utf8.RuneCountInString(p.Text) > model.MaxPollTextLen {
		return fmt.Errorf("text exceeds %d characters", model.MaxPollTextLen)
	}
	switch p.Type {
	case model.MultipleChoice, model.FreeResponse:
	default:
		return fmt.Errorf("type must be %s or %s", model.MultipleChoice, model.FreeResponse)
	}
	if len(p.Options) > model.MaxOptions {
		return fmt.Errorf("at most %d options", model.MaxOptions)
	}
	for _, o := range p.Options {
		if utf8.RuneCountInString(o) > model.MaxOptionTextLen {
			return fmt.Errorf("option exceeds %d characters", model.MaxOptionTextLen)
		}
	}
	return nil
}

func (p *StartPollPayload) Spec() model.StartSpec {
	return model.StartSpec{
		Text:          p.Text,
		Type:          p.Type,
		Options:       p.Options,
		CorrectAnswer: p.CorrectAnswer,
	}
}

// AnswerPayload answers the live poll: Letter for multiple choice, Text for
// free response.
type AnswerPayload struct {
	PollID string `json:"pollId"`
	Letter string `json:"letter,omitempty"`
	Text   string `json:"text,omitempty"`
}

func (p *AnswerPayload) Validate() error {
	if p.PollID == "" {
		return fmt.Errorf("pollId is required")
	}
	if (p.Letter == "") == (p.Text == "") {
		return fmt.Errorf("exactly one of letter or text is required")
	}
	if utf8.RuneCountInString(p.Text) > model.MaxAnswerTextLen {
		return fmt.Errorf("text exceeds %d characters", model.MaxAnswerTextLen)
	}
	return nil
}

func (p *AnswerPayload) Choice() model.Choice {
	return model.Choice{Letter: p.Letter, Text: p.Text}
}

type UpvotePayload struct {
	PollID string `json:"pollId"`
	Text   string `json:"text"`
}

func (p *UpvotePayload) Validate() error {
	if p.PollID == "" {
		return fmt.Errorf("pollId is required")
	}
	if p.Text == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

// DeletePollPayload names a persisted poll.
type DeletePollPayload struct {
	PollID string `json:"pollId"`
}

func (p *DeletePollPayload) Validate() error {
	if p.PollID == "" {
		return fmt.Errorf("pollId is required")
	}
	return nil
}

type emptyPayload struct{}

func (*emptyPayload) Validate() error { return nil }

// Server to client payloads.

type DeletedPayload struct {
	PollID string `json:"pollId"`
}

// decodePayload strictly decodes raw into a T and validates it. A missing
// payload decodes as {}.
func decodePayload[T any, PT interface {
	*T
	validator
}](raw json.RawMessage) (*T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	v := new(T)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := PT(v).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return v, nil
}
