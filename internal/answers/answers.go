// Package answers resolves non-crisis utterances to canned answers from the predefined
// question bank or the user's own questions, and builds the generic reply otherwise.
package answers

import (
	"errors"
	"time"
)

// Action is a side effect the host performs along with showing an answer.
type Action string

const (
	ActionNone      Action = ""
	ActionPlaceCall Action = "place_call"
)

// Sources of a resolved answer.
const (
	SourcePredefined = "predefined"
	SourceCustom     = "custom"
)

// CallAnswerID is the predefined entry the "911" shortcut resolves to.
const CallAnswerID = "call-911"

var (
	ErrQuestionNotFound = errors.New("answers: question not found")
	ErrInvalidQuestion  = errors.New("answers: question and answer are required")
)

// Answer is one question bank record.
type Answer struct {
	ID        string    `json:"id" yaml:"id"`
	Question  string    `json:"question" yaml:"question"`
	Answer    string    `json:"answer" yaml:"answer"`
	Category  string    `json:"category" yaml:"category"`
	Action    Action    `json:"action,omitempty" yaml:"action,omitempty"`
	Source    string    `json:"source,omitempty" yaml:"-"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
}
