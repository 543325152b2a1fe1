package checks

import (
	"time"

	"voiceref/internal/questions"
)

// ReferenceCheck is one candidate's overall check for one application.
type ReferenceCheck struct {
	ID             string      `json:"id" db:"id"`
	CandidateName  string      `json:"candidate_name" db:"candidate_name"`
	CandidateEmail string      `json:"candidate_email" db:"candidate_email"`
	Position       string      `json:"position" db:"position"`
	Company        string      `json:"company" db:"company"`
	JobDescription string      `json:"job_description" db:"job_description"`
	Status         CheckStatus `json:"status" db:"status"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

type CheckStatus string

const (
	CheckStatusPending             CheckStatus = "pending"
	CheckStatusReferencesSubmitted CheckStatus = "references_submitted"
	CheckStatusInProgress          CheckStatus = "in_progress"
	CheckStatusCompleted           CheckStatus = "completed"
)

// ReferenceContact is one named reference on a check.
type ReferenceContact struct {
	ID           string        `json:"id" db:"id"`
	CheckID      string        `json:"reference_check_id" db:"reference_check_id"`
	Name         string        `json:"name" db:"name"`
	Email        string        `json:"email" db:"email"`
	Phone        string        `json:"phone,omitempty" db:"phone"`
	Relationship string        `json:"relationship,omitempty" db:"relationship"`
	Status       ContactStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ContactStatus moves pending -> invitation_sent -> scheduled -> completed|failed.
type ContactStatus string

const (
	ContactStatusPending        ContactStatus = "pending"
	ContactStatusInvitationSent ContactStatus = "invitation_sent"
	ContactStatusScheduled      ContactStatus = "scheduled"
	ContactStatusCompleted      ContactStatus = "completed"
	ContactStatusFailed         ContactStatus = "failed"
)

func (s ContactStatus) IsTerminal() bool {
	return s == ContactStatusCompleted || s == ContactStatusFailed
}

var nonTerminalContactStatuses = []ContactStatus{
	ContactStatusPending,
	ContactStatusInvitationSent,
	ContactStatusScheduled,
}

type ReferenceInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

type CreateCheckRequest struct {
	CandidateName   string           `json:"candidate_name"`
	CandidateEmail  string           `json:"candidate_email"`
	Position        string           `json:"position"`
	Company         string           `json:"company"`
	JobDescription  string           `json:"job_description"`
	CustomQuestions []string         `json:"custom_questions,omitempty"`
	References      []ReferenceInput `json:"references,omitempty"`
}

// ReferenceResponse is one answer a reference typed in through their link instead of
// taking the phone interview.
type ReferenceResponse struct {
	ID         string `json:"id" db:"id"`
	CheckID    string `json:"reference_check_id" db:"reference_check_id"`
	ContactID  string `json:"contact_id" db:"contact_id"`
	QuestionID string `json:"question_id" db:"question_id"`
	Question   string `json:"question" db:"question"`
	Answer     string `json:"answer" db:"answer"`
	Order      int    `json:"order" db:"order_num"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CheckDetail is a check with everything attached to it.
type CheckDetail struct {
	Check     ReferenceCheck       `json:"check"`
	Contacts  []ReferenceContact   `json:"contacts"`
	Questions []questions.Question `json:"questions"`
	Responses []ReferenceResponse  `json:"responses,omitempty"`
}

// ReferenceLink is what a reference sees after opening a scheduling link.
type ReferenceLink struct {
	Check     ReferenceCheck       `json:"check"`
	Contact   ReferenceContact     `json:"contact"`
	Questions []questions.Question `json:"questions"`
}

const (
	MinReferences = 2
	MaxReferences = 5
)
