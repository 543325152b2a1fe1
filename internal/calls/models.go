package calls

import "time"

// ScheduledCall is one attempt to reach a reference by phone.
//
// Invariants:
// - Status only moves forward: scheduled -> in_progress -> completed|failed|no_answer.
// - Rows are never deleted; they double as the audit record of the attempt.
// - ProviderCallID is unique once set.
type ScheduledCall struct {
	ID        string `json:"id" db:"id"`
	CheckID   string `json:"reference_check_id" db:"reference_check_id"`
	ContactID string `json:"contact_id,omitempty" db:"contact_id"`

	// PhoneNumber is E.164.
	PhoneNumber   string    `json:"phone_number" db:"phone_number"`
	ContactName   string    `json:"contact_name,omitempty" db:"contact_name"`
	ScheduledTime time.Time `json:"scheduled_time" db:"scheduled_time"`

	AssistantID    string `json:"assistant_id" db:"assistant_id"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Status CallStatus `json:"status" db:"status"`

	// Transcript is the raw speaker-labeled text; FormattedTranscript is the cleaned
	// Q/A text, or the raw text when formatting was unavailable.
	Transcript          string `json:"transcript,omitempty" db:"transcript"`
	FormattedTranscript string `json:"formatted_transcript,omitempty" db:"formatted_transcript"`

	DurationSeconds int    `json:"duration" db:"duration_seconds"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`
	ErrorMessage    string `json:"error_message,omitempty" db:"error_message"`

	DispatchedAt *time.Time `json:"dispatched_at,omitempty" db:"dispatched_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	NotifiedAt   *time.Time `json:"notified_at,omitempty" db:"notified_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusScheduled  CallStatus = "scheduled"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
)

func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is a forward move.
func CanTransition(from, to CallStatus) bool {
	switch from {
	case CallStatusScheduled:
		return to == CallStatusInProgress || to.IsTerminal()
	case CallStatusInProgress:
		return to.IsTerminal()
	default:
		return false
	}
}

// Completion is the final state written once when a call ends.
type Completion struct {
	Status              CallStatus
	DurationSeconds     int
	RecordingURL        string
	Transcript          string
	FormattedTranscript string
	ErrorMessage        string
	CompletedAt         time.Time
}

// CallTranscript is created once at completion and never modified.
type CallTranscript struct {
	ID        string `json:"id" db:"id"`
	CallID    string `json:"call_id" db:"call_id"`
	CheckID   string `json:"reference_check_id" db:"reference_check_id"`
	Raw       string `json:"raw" db:"raw"`
	Formatted string `json:"formatted" db:"formatted"`

	// FormatterFallback is true when Formatted is a verbatim copy of Raw.
	FormatterFallback bool `json:"formatter_fallback" db:"formatter_fallback"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
