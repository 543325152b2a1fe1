package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"voiceref/internal/audit"
	"voiceref/internal/checks"
	"voiceref/internal/questions"
	"voiceref/internal/telemetry"
	"voiceref/internal/voice"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrConflict        = errors.New("calls: conflict")
	// ErrPlatform wraps failures returned by the voice platform.
	ErrPlatform = errors.New("calls: voice platform error")
)

// CheckDirectory is the slice of Request Intake the call lifecycle needs.
type CheckDirectory interface {
	GetCheckRecord(ctx context.Context, id string) (checks.ReferenceCheck, error)
	GetContact(ctx context.Context, id string) (checks.ReferenceContact, error)
	Questions(ctx context.Context, checkID string) ([]questions.Question, error)
	MarkContactScheduled(ctx context.Context, contactID string) error
	RecordContactOutcome(ctx context.Context, contactID string, succeeded bool) error
}

type SchedulerConfig struct {
	Model         string
	VoiceID       string
	WebhookURL    string
	WebhookSecret string
	// DefaultRegion is used to parse numbers written without a country code.
	DefaultRegion string
}

type ScheduleRequest struct {
	CheckID         string    `json:"reference_check_id"`
	ContactID       string    `json:"contact_id,omitempty"`
	PhoneNumber     string    `json:"phone_number"`
	ContactName     string    `json:"contact_name,omitempty"`
	ScheduledTime   time.Time `json:"scheduled_time"`
	CustomQuestions []string  `json:"custom_questions,omitempty"`
}

// Scheduler books future calls: one remote assistant plus one scheduled row per call.
type Scheduler struct {
	repo     Repository
	checks   CheckDirectory
	platform voice.Platform
	audit    *audit.Service
	cfg      SchedulerConfig
	log      *slog.Logger
	clock    func() time.Time
}

func NewScheduler(repo Repository, dir CheckDirectory, platform voice.Platform, auditSvc *audit.Service, cfg SchedulerConfig, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		repo:     repo,
		checks:   dir,
		platform: platform,
		audit:    auditSvc,
		cfg:      cfg,
		log:      log.With("component", "call_scheduler"),
		clock:    time.Now,
	}
}

// Schedule validates the request, creates the remote assistant and persists the call.
//
// Either both the assistant and the row exist afterwards, or the error is returned and
// the assistant is deleted again.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (ScheduledCall, error) {
	now := s.clock().UTC()

	req.CheckID = strings.TrimSpace(req.CheckID)
	if req.CheckID == "" {
		return ScheduledCall{}, fmt.Errorf("%w: reference_check_id is required", ErrInvalidArgument)
	}
	if req.ScheduledTime.IsZero() {
		return ScheduledCall{}, fmt.Errorf("%w: scheduled_time is required", ErrInvalidArgument)
	}
	if !req.ScheduledTime.After(now) {
		return ScheduledCall{}, fmt.Errorf("%w: scheduled_time must be in the future", ErrInvalidArgument)
	}

	check, err := s.checks.GetCheckRecord(ctx, req.CheckID)
	if err != nil {
		return ScheduledCall{}, lookupErr("reference check", req.CheckID, err)
	}
	if check.Status == checks.CheckStatusCompleted {
		return ScheduledCall{}, fmt.Errorf("%w: reference check %s is already completed", ErrConflict, check.ID)
	}

	phone, name := req.PhoneNumber, req.ContactName
	if req.ContactID != "" {
		contact, err := s.checks.GetContact(ctx, req.ContactID)
		if err != nil {
			return ScheduledCall{}, lookupErr("reference contact", req.ContactID, err)
		}
		if contact.CheckID != check.ID {
			return ScheduledCall{}, fmt.Errorf("%w: contact %s does not belong to check %s", ErrInvalidArgument, contact.ID, check.ID)
		}
		if contact.Status.IsTerminal() {
			return ScheduledCall{}, fmt.Errorf("%w: reference %s is already %s", ErrConflict, contact.ID, contact.Status)
		}
		if strings.TrimSpace(phone) == "" {
			phone = contact.Phone
		}
		if strings.TrimSpace(name) == "" {
			name = contact.Name
		}
	}

	e164, err := NormalizePhone(phone, s.cfg.DefaultRegion)
	if err != nil {
		return ScheduledCall{}, err
	}

	existing, err := s.checks.Questions(ctx, check.ID)
	if err != nil {
		return ScheduledCall{}, fmt.Errorf("load questions: %w", err)
	}
	qs := questions.Merge(existing, req.CustomQuestions)
	if len(qs) == 0 {
		qs = questions.StandardQuestions(check.Position)
	}

	in := promptInput{
		CandidateName:  check.CandidateName,
		Position:       check.Position,
		Company:        check.Company,
		JobDescription: check.JobDescription,
		ReferenceName:  name,
		Questions:      qs,
	}
	callID := uuid.NewString()
	assistantID, err := s.platform.CreateAssistant(ctx, voice.AssistantConfig{
		Name:          assistantName(check.CandidateName),
		Model:         s.cfg.Model,
		VoiceID:       s.cfg.VoiceID,
		FirstMessage:  firstMessage(in),
		SystemPrompt:  systemPrompt(in),
		WebhookURL:    s.cfg.WebhookURL,
		WebhookSecret: s.cfg.WebhookSecret,
		Metadata: map[string]string{
			"call_id":            callID,
			"reference_check_id": check.ID,
			"contact_id":         req.ContactID,
		},
	})
	if err != nil {
		s.log.Error("assistant create failed", "err", err, "check_id", check.ID)
		return ScheduledCall{}, fmt.Errorf("%w: create assistant: %v", ErrPlatform, err)
	}

	call := ScheduledCall{
		ID:            callID,
		CheckID:       check.ID,
		ContactID:     req.ContactID,
		PhoneNumber:   e164,
		ContactName:   strings.TrimSpace(name),
		ScheduledTime: req.ScheduledTime.UTC(),
		AssistantID:   assistantID,
		Status:        CallStatusScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, call); err != nil {
		s.deleteAssistant(ctx, assistantID)
		return ScheduledCall{}, fmt.Errorf("persist scheduled call: %w", err)
	}

	if call.ContactID != "" {
		if err := s.checks.MarkContactScheduled(ctx, call.ContactID); err != nil {
			s.log.Warn("contact status update failed", "err", err, "contact_id", call.ContactID)
		}
	}
	s.audit.Record(ctx, audit.EventCallScheduled, call.CheckID, call.ID,
		fmt.Sprintf("call to %s scheduled for %s", call.PhoneNumber, call.ScheduledTime.Format(time.RFC3339)))
	telemetry.CallsScheduled.Inc()
	s.log.Info("call scheduled", "call_id", call.ID, "check_id", call.CheckID, "scheduled_time", call.ScheduledTime)
	return call, nil
}

// Get returns a call by id.
func (s *Scheduler) Get(ctx context.Context, id string) (ScheduledCall, error) {
	if strings.TrimSpace(id) == "" {
		return ScheduledCall{}, fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}
	return s.repo.Get(ctx, id)
}

// deleteAssistant compensates a failed insert. It runs even when ctx is already done.
func (s *Scheduler) deleteAssistant(ctx context.Context, assistantID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.platform.DeleteAssistant(cctx, assistantID); err != nil {
		s.log.Error("orphaned assistant cleanup failed", "err", err, "assistant_id", assistantID)
	}
}

func lookupErr(what, id string, err error) error {
	if errors.Is(err, checks.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
