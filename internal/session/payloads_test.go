package session

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/live_polling_system/internal/model"
)

func TestDecodePayload_StartPoll(t *testing.T) {
	p, err := decodePayload[StartPollPayload](json.RawMessage(
		`{"text":"Best fruit?","type":"MULTIPLE_CHOICE","options":["apple","pear"],"correctAnswer":"B"}`))
	require.NoError(t, err)
	assert.Equal(t, model.StartSpec{
		Text:          "Best fruit?",
		Type:          model.MultipleChoice,
		Options:       []string{"apple", "pear"},
		CorrectAnswer: "B",
	}, p.Spec())
}

func TestDecodePayload_Rejects(t *testing.T) {
	tooMany := make([]string, model.MaxOptions+1)
	for i := range tooMany {
		tooMany[i] = "o"
	}
	manyJSON, err := json.Marshal(map[string]any{"text": "Q", "type": "MULTIPLE_CHOICE", "options": tooMany})
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"unknown field", `{"text":"Q","type":"FREE_RESPONSE","color":"red"}`},
		{"missing text", `{"type":"FREE_RESPONSE"}`},
		{"bad type", `{"text":"Q","type":"RANKING"}`},
		{"too many options", string(manyJSON)},
		{"long text", `{"text":"` + strings.Repeat("x", model.MaxPollTextLen+1) + `","type":"FREE_RESPONSE"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodePayload[StartPollPayload](json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestDecodePayload_Answer(t *testing.T) {
	p, err := decodePayload[AnswerPayload](json.RawMessage(`{"pollId":"p1","text":"GET"}`))
	require.NoError(t, err)
	assert.Equal(t, model.Choice{Text: "GET"}, p.Choice())

	for _, raw := range []string{
		`{"pollId":"p1"}`,
		`{"letter":"A"}`,
		`{"pollId":"p1","letter":"A","text":"GET"}`,
		`{"pollId":"p1","text":"` + strings.Repeat("y", model.MaxAnswerTextLen+1) + `"}`,
	} {
		_, err := decodePayload[AnswerPayload](json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrInvalidPayload, raw)
	}
}

func TestDecodePayload_EmptyAcceptsMissingBody(t *testing.T) {
	for _, raw := range []string{``, `null`, `{}`} {
		_, err := decodePayload[emptyPayload](json.RawMessage(raw))
		assert.NoError(t, err, raw)
	}
}
