package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Answer records submitted as the participant's answer.
//
// Multiple choice: the previous selection, if any, is replaced in one step,
// so the letter counts always sum to the number of participants that
// answered. Answering the same letter again changes nothing.
//
// Free response: the text becomes a new choice (count 1, self-upvoted) or
// endorses the existing choice with the same text. A participant may hold
// several distinct answers.
func (p Poll) Answer(participantID string, submitted Choice) (Poll, error) {
	switch p.Type {
	case MultipleChoice:
		return p.answerMultipleChoice(participantID, submitted.Letter)
	case FreeResponse:
		return p.answerFreeResponse(participantID, submitted.Text)
	default:
		panic(fmt.Sprintf("model: unknown poll type %q", p.Type))
	}
}

func (p Poll) answerMultipleChoice(participantID, letter string) (Poll, error) {
	idx := p.choiceIndex(letter)
	if letter == "" || idx < 0 {
		return p, fmt.Errorf("%w: letter %q", ErrUnknownChoice, letter)
	}

	prev := p.Answers[participantID]
	if len(prev) == 1 && prev[0].Letter == letter {
		return p, nil
	}

	next := p.clone()
	if len(prev) > 0 {
		if j := next.choiceIndex(prev[0].Letter); j >= 0 && next.AnswerChoices[j].Count > 0 {
			next.AnswerChoices[j].Count--
		}
	}
	next.AnswerChoices[idx].Count++

	chosen := next.AnswerChoices[idx]
	next.Answers[participantID] = []Choice{{Letter: chosen.Letter, Text: chosen.Text}}
	return next, nil
}

func (p Poll) answerFreeResponse(participantID, text string) (Poll, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return p, ErrEmptyAnswer
	}
	if utf8.RuneCountInString(text) > MaxAnswerTextLen {
		return p, fmt.Errorf("%w: limit is %d characters", ErrAnswerTooLong, MaxAnswerTextLen)
	}
	if containsKey(p.Answers[participantID], text) {
		return p, nil
	}

	next := p.clone()
	if idx := next.choiceIndex(text); idx < 0 {
		next.AnswerChoices = append(next.AnswerChoices, Choice{Text: text, Count: 1})
		next.Upvotes[participantID] = append(next.Upvotes[participantID], Choice{Text: text})
	} else if !containsKey(next.Upvotes[participantID], text) {
		next.AnswerChoices[idx].Count++
		next.Upvotes[participantID] = append(next.Upvotes[participantID], Choice{Text: text})
	}
	next.Answers[participantID] = append(next.Answers[participantID], Choice{Text: text})
	return next, nil
}

// Upvote toggles the participant's endorsement of a free-response choice.
// The bool reports whether anything changed: a choice that does not exist
// (any more) is ignored.
func (p Poll) Upvote(participantID, text string) (Poll, bool, error) {
	if p.Type != FreeResponse {
		return p, false, ErrWrongPollType
	}
	text = strings.TrimSpace(text)
	idx := p.choiceIndex(text)
	if text == "" || idx < 0 {
		return p, false, nil
	}

	next := p.clone()
	mine := next.Upvotes[participantID]
	if containsKey(mine, text) {
		mine = removeKey(mine, text)
		if next.AnswerChoices[idx].Count > 0 {
			next.AnswerChoices[idx].Count--
		}
	} else {
		mine = append(mine, Choice{Text: text})
		next.AnswerChoices[idx].Count++
	}

	if len(mine) == 0 {
		delete(next.Upvotes, participantID)
	} else {
		next.Upvotes[participantID] = mine
	}
	return next, true, nil
}
