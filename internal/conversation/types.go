// Package conversation runs the crisis pipeline for each chat session: classify,
// escalate, open the emergency session, and otherwise resolve a canned answer.
package conversation

import (
	"errors"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/answers"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
)

var (
	ErrUnknownConversation = errors.New("conversation: unknown conversation")
	ErrNoActiveEmergency   = errors.New("conversation: no active emergency")
	ErrEmptyUtterance      = errors.New("conversation: empty utterance")
)

// Source is how an utterance reached the engine.
type Source string

const (
	SourceTyped      Source = "typed"
	SourceVoice      Source = "voice"
	SourcePredefined Source = "predefined"
)

// ParseSource maps a wire value to a Source, defaulting to typed.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceVoice, SourcePredefined:
		return Source(s)
	default:
		return SourceTyped
	}
}

// Profile is what the host knows about the user. Every field is optional.
type Profile struct {
	UserID   string            `json:"user_id,omitempty"`
	Name     string            `json:"name,omitempty"`
	Email    string            `json:"email,omitempty"`
	Language string            `json:"language,omitempty"`
	Contact  emergency.Contact `json:"emergency_contact"`
}

// OpenRequest starts or resumes a conversation.
type OpenRequest struct {
	ConversationID string
	Profile        Profile
}

// Info describes an open conversation.
type Info struct {
	ConversationID string              `json:"conversation_id"`
	Language       string              `json:"language"`
	LexiconVersion string              `json:"lexicon_version"`
	State          crisis.State        `json:"state"`
	Hotlines       []emergency.Hotline `json:"hotlines"`
}

// Outcome is the engine's answer to one utterance.
type Outcome struct {
	ConversationID string              `json:"conversation_id"`
	Verdict        crisis.Verdict      `json:"verdict"`
	Decision       crisis.Decision     `json:"decision"`
	State          crisis.State        `json:"state"`
	Emergency      *emergency.Snapshot `json:"emergency,omitempty"`
	Answer         *answers.Answer     `json:"answer,omitempty"`
	Reply          string              `json:"reply"`
	PlaceCall      bool                `json:"place_call,omitempty"`
	CallError      string              `json:"call_error,omitempty"`
}

// Host renders engine signals. Calls may arrive from timer goroutines.
type Host interface {
	OnEscalationDecision(conversationID string, decision crisis.Decision, state crisis.State)
	OnEmergencyUpdate(conversationID string, snapshot emergency.Snapshot)
}

// NopHost ignores every signal.
type NopHost struct{}

func (NopHost) OnEscalationDecision(string, crisis.Decision, crisis.State) {}
func (NopHost) OnEmergencyUpdate(string, emergency.Snapshot)               {}
