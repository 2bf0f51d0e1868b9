package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AnswerKind tags which variant an Answer holds.
type AnswerKind string

const (
	AnswerOption AnswerKind = "option"
	AnswerText   AnswerKind = "text"
)

// Answer is a respondent's answer to one question: either the id of a chosen
// option or a free-text reply.
type Answer struct {
	Kind     AnswerKind `json:"kind"`
	OptionID int64      `json:"option_id,omitempty"`
	Text     string     `json:"text,omitempty"`
}

// OptionChoice answers a multiple-choice question.
func OptionChoice(optionID int64) Answer {
	return Answer{Kind: AnswerOption, OptionID: optionID}
}

// FreeText answers a descriptive question.
func FreeText(text string) Answer {
	return Answer{Kind: AnswerText, Text: text}
}

// Empty reports whether the answer carries no usable value.
func (a Answer) Empty() bool {
	switch a.Kind {
	case AnswerOption:
		return a.OptionID <= 0
	case AnswerText:
		return strings.TrimSpace(a.Text) == ""
	}
	return true
}

// Fits reports whether the answer is non-empty and of the kind q expects.
// An option answer must reference one of q's own options.
func (a Answer) Fits(q Question) bool {
	if a.Empty() {
		return false
	}
	switch q.Type {
	case QuestionMCQ:
		return a.Kind == AnswerOption && q.HasOption(a.OptionID)
	case QuestionDescriptive:
		return a.Kind == AnswerText
	}
	return false
}

// UnmarshalJSON accepts the tagged form as well as a bare number (option id)
// or a bare string (free text).
func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty answer")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*a = FreeText(s)
		return nil
	case '{':
	case 'n':
		*a = Answer{}
		return nil
	default:
		var id int64
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return fmt.Errorf("option id %s: %w", trimmed, err)
		}
		*a = OptionChoice(id)
		return nil
	}
	type plain Answer
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Kind != AnswerOption && p.Kind != AnswerText {
		return fmt.Errorf("unknown answer kind %q", p.Kind)
	}
	*a = Answer(p)
	return nil
}
