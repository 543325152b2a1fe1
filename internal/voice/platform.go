package voice

import (
	"context"
	"errors"
	"time"

	"voiceref/internal/transcript"
)

// Platform is the provider-agnostic voice AI contract used by business logic.
//
// Rules:
// - No provider HTTP calls outside adapters in this package.
// - Every call must be bounded by the caller's context deadline.
type Platform interface {
	CreateAssistant(ctx context.Context, cfg AssistantConfig) (assistantID string, err error)
	// DeleteAssistant is used as compensation when local persistence fails after creation.
	DeleteAssistant(ctx context.Context, assistantID string) error
	PlaceCall(ctx context.Context, req PlaceCallRequest) (providerCallID string, err error)
	GetCall(ctx context.Context, providerCallID string) (CallRecord, error)
}

var ErrNotFound = errors.New("voice: call not found")

// AssistantConfig describes the remote conversation driver for one reference call.
type AssistantConfig struct {
	Name          string
	Model         string
	VoiceID       string
	FirstMessage  string
	SystemPrompt  string
	WebhookURL    string
	WebhookSecret string

	Metadata map[string]string
}

type PlaceCallRequest struct {
	AssistantID string
	// PhoneNumber is E.164.
	PhoneNumber  string
	CustomerName string
}

// CallRecord is the authoritative post-call state fetched from the platform.
type CallRecord struct {
	ID              string
	Status          string
	EndedReason     string
	DurationSeconds int
	RecordingURL    string
	Transcript      []transcript.Turn
	StartedAt       *time.Time
	EndedAt         *time.Time
}

// Outcome is the terminal result of a finished call.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeNoAnswer  Outcome = "no_answer"
	OutcomeFailed    Outcome = "failed"
)

// Outcome classifies the call by its ended reason and provider status.
func (r CallRecord) Outcome() Outcome {
	switch r.EndedReason {
	case "no-answer", "customer-did-not-answer", "customer-busy", "voicemail":
		return OutcomeNoAnswer
	case "failed", "assistant-error", "pipeline-error", "twilio-failed-to-connect-call":
		return OutcomeFailed
	}
	switch r.Status {
	case "no-answer", "customer-did-not-answer":
		return OutcomeNoAnswer
	case "failed", "assistant-error":
		return OutcomeFailed
	}
	return OutcomeCompleted
}
