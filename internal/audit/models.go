package audit

import "time"

// Event is an immutable, append-only record of a reference check or call lifecycle step.
//
// Invariants:
// - Events are never updated or deleted.
// - At least one of CheckID or CallID is set.
// - Audit is best-effort; critical flows never fail because of it.
type Event struct {
	ID      string    `json:"id" db:"id"`
	CheckID string    `json:"reference_check_id,omitempty" db:"reference_check_id"`
	CallID  string    `json:"call_id,omitempty" db:"call_id"`
	Type    EventType `json:"type" db:"type"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventCheckCreated        EventType = "check_created"
	EventReferencesSubmitted EventType = "references_submitted"
	EventResponsesSubmitted  EventType = "responses_submitted"
	EventCheckCompleted      EventType = "check_completed"

	EventCallScheduled      EventType = "call_scheduled"
	EventCallDispatched     EventType = "call_dispatched"
	EventCallDispatchFailed EventType = "call_dispatch_failed"
	EventCallStarted        EventType = "call_started"
	EventCallCompleted      EventType = "call_completed"
	EventCallFailed         EventType = "call_failed"
	EventCallNotified       EventType = "call_notified"
)
