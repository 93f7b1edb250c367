package model

import (
	"fmt"
	"strings"
)

// Answer is a user's response to a symptom question
type Answer int

const (
	AnswerNo     Answer = iota // Symptom absent
	AnswerUnsure               // Symptom possibly present
	AnswerYes                  // Symptom present
)

// DefaultUnsureFactor scales a fact's certainty for an "unsure" answer
const DefaultUnsureFactor = 0.5

func (a Answer) String() string {
	switch a {
	case AnswerYes:
		return "yes"
	case AnswerUnsure:
		return "unsure"
	default:
		return "no"
	}
}

// ParseAnswer parses a textual answer. Indonesian forms (ya, ragu, tidak)
// are accepted too.
func ParseAnswer(s string) (Answer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "ya", "true":
		return AnswerYes, nil
	case "unsure", "maybe", "?", "ragu":
		return AnswerUnsure, nil
	case "no", "n", "tidak", "false":
		return AnswerNo, nil
	default:
		return AnswerNo, fmt.Errorf("unknown answer %q (want yes, unsure or no)", s)
	}
}

// Certainty converts the answer into an initial fact certainty for a
// question whose full "yes" certainty is maxCF.
func (a Answer) Certainty(maxCF, unsureFactor float64) float64 {
	switch a {
	case AnswerYes:
		return maxCF
	case AnswerUnsure:
		return maxCF * unsureFactor
	default:
		return 0
	}
}

// AnswerSheet is one completed questionnaire.
// Values are answer words or numeric certainties in [-1, 1].
type AnswerSheet struct {
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Answers map[string]string `json:"answers" yaml:"answers"`
	Source  string            `json:"-" yaml:"-"` // File the sheet was read from
}
