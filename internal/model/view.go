package model

type ChoiceView struct {
	Letter string `json:"letter,omitempty"`
	Text   string `json:"text"`
	Count  *int   `json:"count"`
}

type AnswerRef struct {
	Letter string `json:"letter,omitempty"`
	Text   string `json:"text"`
}

// PollView is the response-safe projection of a Poll.
type PollView struct {
	ID             string       `json:"id"`
	PersistedID    string       `json:"persistedId,omitempty"`
	Text           string       `json:"text"`
	Type           PollType     `json:"type"`
	State          PollState    `json:"state"`
	CorrectAnswer  string       `json:"correctAnswer,omitempty"`
	AnswerChoices  []ChoiceView `json:"answerChoices"`
	TotalResponses *int         `json:"totalResponses,omitempty"`
	UserAnswers    []AnswerRef  `json:"userAnswers,omitempty"`
	UserUpvotes    []AnswerRef  `json:"userUpvotes,omitempty"`
}

// countsHidden reports whether a member must not see tallies. Free response
// counts are upvotes and always visible.
func (p Poll) countsHidden(role Role) bool {
	return role != RoleAdmin && p.Type == MultipleChoice && p.State != StateShared
}

// View projects the poll for one viewer. participantID may be empty for a
// view that is broadcast to a whole partition; then no personal ledger is
// attached. Other participants' identities never appear.
func (p Poll) View(participantID string, role Role) *PollView {
	hide := p.countsHidden(role)
	v := &PollView{
		ID:            p.ID,
		Text:          p.Text,
		Type:          p.Type,
		State:         p.State,
		AnswerChoices: make([]ChoiceView, 0, len(p.AnswerChoices)),
	}
	for _, c := range p.AnswerChoices {
		cv := ChoiceView{Letter: c.Letter, Text: c.Text}
		if !hide {
			n := c.Count
			cv.Count = &n
		}
		v.AnswerChoices = append(v.AnswerChoices, cv)
	}

	if role == RoleAdmin || p.State != StateLive {
		v.CorrectAnswer = p.CorrectAnswer
	}
	if role == RoleAdmin {
		n := p.TotalResponses()
		v.TotalResponses = &n
	}
	if participantID != "" {
		v.UserAnswers = refs(p.Answers[participantID])
		v.UserUpvotes = refs(p.Upvotes[participantID])
	}
	return v
}

// Descriptor is the redacted shape announced when a poll ends: the question
// and its choices without any tallies.
func (p Poll) Descriptor() *PollView {
	v := &PollView{
		ID:            p.ID,
		Text:          p.Text,
		Type:          p.Type,
		State:         StateEnded,
		CorrectAnswer: p.CorrectAnswer,
		AnswerChoices: make([]ChoiceView, 0, len(p.AnswerChoices)),
	}
	for _, c := range p.AnswerChoices {
		v.AnswerChoices = append(v.AnswerChoices, ChoiceView{Letter: c.Letter, Text: c.Text})
	}
	return v
}

func refs(list []Choice) []AnswerRef {
	if len(list) == 0 {
		return nil
	}
	out := make([]AnswerRef, 0, len(list))
	for _, c := range list {
		out = append(out, AnswerRef{Letter: c.Letter, Text: c.Text})
	}
	return out
}
