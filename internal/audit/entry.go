// Package audit records emergency protocol activations. Writes are best effort:
// a failing sink never blocks or fails the emergency flow.
package audit

import (
	"context"
	"errors"
	"time"
)

// ErrStoredInFallback marks a write that missed the primary store but reached the
// local fallback.
var ErrStoredInFallback = errors.New("audit: stored in fallback")

// Entry is one append-only emergency activation record. Empty identity and contact
// fields mean "unknown" and are persisted as NULL.
type Entry struct {
	ID                    string    `json:"id"`
	ConversationID        string    `json:"conversation_id"`
	SessionID             string    `json:"session_id,omitempty"`
	UserID                string    `json:"user_id,omitempty"`
	UserName              string    `json:"user_name,omitempty"`
	UserEmail             string    `json:"user_email,omitempty"`
	EmergencyContactName  string    `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string    `json:"emergency_contact_phone,omitempty"`
	TriggerReason         string    `json:"trigger_reason"`
	Source                string    `json:"source,omitempty"`
	ActivatedAt           time.Time `json:"activated_at"`
}

// Anonymous reports whether the reporting user is unknown.
func (e Entry) Anonymous() bool {
	return e.UserID == "" && e.UserEmail == ""
}

// Sink persists activation entries.
type Sink interface {
	RecordEmergencyActivation(ctx context.Context, entry Entry) error
}

// Filter narrows audit listings.
type Filter struct {
	ConversationID string
	UserID         string
	Since          time.Time
	Until          time.Time
	Limit          int
	Offset         int
}
