// Package event carries poll lifecycle events from live sessions to Kafka.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/Guizzs26/live_polling_system/internal/model"
)

type Type string

const (
	PollStarted   Type = "poll.started"
	PollAnswered  Type = "poll.answered"
	PollShared    Type = "poll.shared"
	PollEnded     Type = "poll.ended"
	PollDeleted   Type = "poll.deleted"
	PollDiscarded Type = "poll.discarded"
	GroupEnded    Type = "group.ended"
)

// PollEvent is one lifecycle change of a group's poll. ID is unique per
// event so consumers can drop redelivered messages.
type PollEvent struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	GroupID     string         `json:"groupId"`
	GroupCode   string         `json:"groupCode"`
	LivePollID  string         `json:"livePollId,omitempty"`
	PersistedID string         `json:"persistedId,omitempty"`
	Text        string         `json:"text,omitempty"`
	PollType    model.PollType `json:"pollType,omitempty"`
	Tallies     map[string]int `json:"tallies,omitempty"`
	Responses   int            `json:"responses"`
	Timestamp   time.Time      `json:"timestamp"`
}

func New(t Type, group model.Group) PollEvent {
	return PollEvent{
		ID:        uuid.NewString(),
		Type:      t,
		GroupID:   group.ID,
		GroupCode: group.Code,
		Timestamp: time.Now().UTC(),
	}
}

// WithPoll fills the poll fields from p.
func (e PollEvent) WithPoll(p model.Poll) PollEvent {
	e.LivePollID = p.ID
	e.Text = p.Text
	e.PollType = p.Type
	e.Responses = p.TotalResponses()
	e.Tallies = p.Tallies()
	return e
}
