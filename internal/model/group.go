package model

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Group is the persistent entity a live session runs under.
type Group struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// PollRecord is an ended poll as handed to persistence.
type PollRecord struct {
	ID            string              `json:"id"`
	GroupID       string              `json:"groupId"`
	LivePollID    string              `json:"livePollId"`
	Text          string              `json:"text"`
	Type          PollType            `json:"type"`
	AnswerChoices []Choice            `json:"answerChoices"`
	CorrectAnswer string              `json:"correctAnswer,omitempty"`
	Answers       map[string][]Choice `json:"answers"`
	Shared        bool                `json:"shared"`
	StartedAt     time.Time           `json:"startedAt"`
	EndedAt       time.Time           `json:"endedAt"`
}

// Record captures the final tallies and the full answer ledger.
func (p Poll) Record(groupID string, endedAt time.Time) PollRecord {
	c := p.clone()
	return PollRecord{
		GroupID:       groupID,
		LivePollID:    p.ID,
		Text:          p.Text,
		Type:          p.Type,
		AnswerChoices: c.AnswerChoices,
		CorrectAnswer: p.CorrectAnswer,
		Answers:       c.Answers,
		Shared:        p.State == StateShared,
		StartedAt:     p.StartedAt,
		EndedAt:       endedAt,
	}
}
