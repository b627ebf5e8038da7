package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestView_MemberRedactionOnUnsharedMC(t *testing.T) {
	p := newMC(t, "one", "two")
	p, _ = p.Answer("u1", Choice{Letter: "A"})
	p.CorrectAnswer = "A"

	member := p.View("u2", RoleMember)
	for _, c := range member.AnswerChoices {
		assert.Nil(t, c.Count, c.Letter)
	}
	assert.Empty(t, member.CorrectAnswer)
	assert.Nil(t, member.TotalResponses)

	raw, err := json.Marshal(member)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"count":null`)

	admin := p.View("", RoleAdmin)
	for _, c := range admin.AnswerChoices {
		assert.NotNil(t, c.Count, c.Letter)
	}
	assert.Equal(t, 1, *admin.AnswerChoices[0].Count)
	assert.Equal(t, "A", admin.CorrectAnswer)
	require.NotNil(t, admin.TotalResponses)
	assert.Equal(t, 1, *admin.TotalResponses)
}

func TestView_SharedShowsCountsToMembers(t *testing.T) {
	p := newMC(t, "one", "two")
	p, _ = p.Answer("u1", Choice{Letter: "B"})
	p = p.Share()

	v := p.View("u1", RoleMember)
	require.NotNil(t, v.AnswerChoices[1].Count)
	assert.Equal(t, 1, *v.AnswerChoices[1].Count)
	assert.Equal(t, StateShared, v.State)
}

func TestView_FreeResponseCountsAlwaysVisible(t *testing.T) {
	p := newFR(t)
	p, _ = p.Answer("u1", Choice{Text: "GET"})

	v := p.View("u2", RoleMember)
	require.Len(t, v.AnswerChoices, 1)
	require.NotNil(t, v.AnswerChoices[0].Count)
	assert.Equal(t, 1, *v.AnswerChoices[0].Count)
}

func TestView_UserLedgerIsViewersOwn(t *testing.T) {
	p := newFR(t)
	p, _ = p.Answer("u1", Choice{Text: "GET"})
	p, _ = p.Answer("u2", Choice{Text: "PUT"})

	v := p.View("u1", RoleMember)
	assert.Equal(t, []AnswerRef{{Text: "GET"}}, v.UserAnswers)
	assert.Equal(t, []AnswerRef{{Text: "GET"}}, v.UserUpvotes)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "u2")

	anon := p.View("", RoleMember)
	assert.Nil(t, anon.UserAnswers)
	assert.Nil(t, anon.UserUpvotes)
}

func TestDescriptor_HasNoCounts(t *testing.T) {
	p := newMC(t, "one", "two")
	p, _ = p.Answer("u1", Choice{Letter: "A"})

	d := p.Descriptor()
	assert.Equal(t, StateEnded, d.State)
	require.Len(t, d.AnswerChoices, 2)
	for _, c := range d.AnswerChoices {
		assert.Nil(t, c.Count)
	}
}
