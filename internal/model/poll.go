package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type PollType string

const (
	MultipleChoice PollType = "MULTIPLE_CHOICE"
	FreeResponse   PollType = "FREE_RESPONSE"
)

type PollState string

const (
	StateLive   PollState = "LIVE"
	StateShared PollState = "SHARED"
	StateEnded  PollState = "ENDED"
)

const (
	MaxOptions       = 26
	MaxPollTextLen   = 1000
	MaxOptionTextLen = 200
	MaxAnswerTextLen = 500
)

var (
	ErrInvalidPoll   = errors.New("invalid poll")
	ErrUnknownChoice = errors.New("choice is not part of the poll")
	ErrWrongPollType = errors.New("operation does not apply to this poll type")
	ErrEmptyAnswer   = errors.New("answer text is empty")
	ErrAnswerTooLong = errors.New("answer text is too long")
)

// Choice is one answer bucket. Multiple-choice buckets are identified by
// Letter, free-response buckets (Letter == "") by Text.
type Choice struct {
	Letter string `json:"letter,omitempty"`
	Text   string `json:"text"`
	Count  int    `json:"count"`
}

// Key identifies the choice within its poll.
func (c Choice) Key() string {
	if c.Letter != "" {
		return c.Letter
	}
	return c.Text
}

type StartSpec struct {
	Text          string
	Type          PollType
	Options       []string
	CorrectAnswer string
}

// Poll is the live poll of a group. It is a value: every mutation returns a
// new Poll and leaves the receiver untouched, so a view built from an older
// value stays consistent while it is being broadcast.
type Poll struct {
	ID            string
	Text          string
	Type          PollType
	AnswerChoices []Choice
	CorrectAnswer string
	State         PollState
	StartedAt     time.Time
	Answers       map[string][]Choice
	Upvotes       map[string][]Choice
}

func letterAt(i int) string {
	return string(rune('A' + i))
}

// NewPoll validates spec and builds a LIVE poll with zeroed counts.
func NewPoll(id string, spec StartSpec, now time.Time) (Poll, error) {
	text := strings.TrimSpace(spec.Text)
	if text == "" {
		return Poll{}, fmt.Errorf("%w: text is required", ErrInvalidPoll)
	}
	if utf8.RuneCountInString(text) > MaxPollTextLen {
		return Poll{}, fmt.Errorf("%w: text exceeds %d characters", ErrInvalidPoll, MaxPollTextLen)
	}

	p := Poll{
		ID:        id,
		Text:      text,
		Type:      spec.Type,
		State:     StateLive,
		StartedAt: now,
		Answers:   make(map[string][]Choice),
		Upvotes:   make(map[string][]Choice),
	}

	switch spec.Type {
	case MultipleChoice:
		if len(spec.Options) == 0 {
			return Poll{}, fmt.Errorf("%w: multiple choice poll needs options", ErrInvalidPoll)
		}
		if len(spec.Options) > MaxOptions {
			return Poll{}, fmt.Errorf("%w: at most %d options", ErrInvalidPoll, MaxOptions)
		}
		p.AnswerChoices = make([]Choice, 0, len(spec.Options))
		for i, opt := range spec.Options {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				return Poll{}, fmt.Errorf("%w: option %s is empty", ErrInvalidPoll, letterAt(i))
			}
			if utf8.RuneCountInString(opt) > MaxOptionTextLen {
				return Poll{}, fmt.Errorf("%w: option %s exceeds %d characters", ErrInvalidPoll, letterAt(i), MaxOptionTextLen)
			}
			p.AnswerChoices = append(p.AnswerChoices, Choice{Letter: letterAt(i), Text: opt})
		}
		if spec.CorrectAnswer != "" {
			if p.choiceIndex(spec.CorrectAnswer) < 0 {
				return Poll{}, fmt.Errorf("%w: correct answer %q is not an option letter", ErrInvalidPoll, spec.CorrectAnswer)
			}
			p.CorrectAnswer = spec.CorrectAnswer
		}
	case FreeResponse:
		p.AnswerChoices = []Choice{}
	default:
		return Poll{}, fmt.Errorf("%w: unknown type %q", ErrInvalidPoll, spec.Type)
	}

	return p, nil
}

func (p Poll) choiceIndex(key string) int {
	for i, c := range p.AnswerChoices {
		if c.Key() == key {
			return i
		}
	}
	return -1
}

// Choice returns the current bucket for key (a letter or a free-response text).
func (p Poll) Choice(key string) (Choice, bool) {
	if i := p.choiceIndex(key); i >= 0 {
		return p.AnswerChoices[i], true
	}
	return Choice{}, false
}

func (p Poll) Shared() bool {
	return p.State == StateShared
}

// TotalResponses is the number of participants holding at least one answer.
func (p Poll) TotalResponses() int {
	n := 0
	for _, a := range p.Answers {
		if len(a) > 0 {
			n++
		}
	}
	return n
}

// Tallies maps each choice key to its count.
func (p Poll) Tallies() map[string]int {
	out := make(map[string]int, len(p.AnswerChoices))
	for _, c := range p.AnswerChoices {
		out[c.Key()] = c.Count
	}
	return out
}

// Share marks the poll results visible to members.
func (p Poll) Share() Poll {
	next := p.clone()
	next.State = StateShared
	return next
}

func (p Poll) clone() Poll {
	next := p
	next.AnswerChoices = append([]Choice(nil), p.AnswerChoices...)
	next.Answers = cloneLedger(p.Answers)
	next.Upvotes = cloneLedger(p.Upvotes)
	return next
}

func cloneLedger(in map[string][]Choice) map[string][]Choice {
	out := make(map[string][]Choice, len(in))
	for k, v := range in {
		out[k] = append([]Choice(nil), v...)
	}
	return out
}

func containsKey(list []Choice, key string) bool {
	return indexOfKey(list, key) >= 0
}

func indexOfKey(list []Choice, key string) int {
	for i, c := range list {
		if c.Key() == key {
			return i
		}
	}
	return -1
}

func removeKey(list []Choice, key string) []Choice {
	i := indexOfKey(list, key)
	if i < 0 {
		return list
	}
	return append(list[:i:i], list[i+1:]...)
}
