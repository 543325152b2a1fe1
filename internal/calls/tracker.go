package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"voiceref/internal/archive"
	"voiceref/internal/audit"
	"voiceref/internal/notify"
	"voiceref/internal/telemetry"
	"voiceref/internal/transcript"
	"voiceref/internal/voice"
)

type TrackerConfig struct {
	// NotifyTo receives the completion email. Empty disables it.
	NotifyTo string
	MailFrom string
}

// Tracker applies voice platform lifecycle events to scheduled calls.
//
// Terminal writes are conditional; only the event that wins the transition stores the
// transcript, archives it and sends the completion email. Redelivered events are no-ops.
type Tracker struct {
	repo      Repository
	platform  voice.Platform
	formatter transcript.Formatter
	sender    notify.Sender
	archive   archive.Store
	checks    CheckDirectory
	audit     *audit.Service
	cfg       TrackerConfig
	log       *slog.Logger
	clock     func() time.Time
}

type TrackerDeps struct {
	Repo      Repository
	Platform  voice.Platform
	Formatter transcript.Formatter
	Sender    notify.Sender
	Archive   archive.Store
	Checks    CheckDirectory
	Audit     *audit.Service
}

func NewTracker(deps TrackerDeps, cfg TrackerConfig, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	store := deps.Archive
	if store == nil {
		store = archive.NoopStore{}
	}
	return &Tracker{
		repo:      deps.Repo,
		platform:  deps.Platform,
		formatter: deps.Formatter,
		sender:    deps.Sender,
		archive:   store,
		checks:    deps.Checks,
		audit:     deps.Audit,
		cfg:       cfg,
		log:       log.With("component", "call_tracker"),
		clock:     time.Now,
	}
}

// HandleEvent implements voice.EventHandler. Unknown call ids are acknowledged without writes.
func (t *Tracker) HandleEvent(ctx context.Context, ev voice.Event) error {
	if ev.CallID == "" || ev.Type == voice.EventIgnored {
		return nil
	}
	call, err := t.lookup(ctx, ev)
	if errors.Is(err, ErrNotFound) {
		t.log.Info("webhook for unknown call ignored", "provider_call_id", ev.CallID, "assistant_id", ev.AssistantID, "type", ev.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find call %s: %w", ev.CallID, err)
	}

	switch ev.Type {
	case voice.EventCallStarted:
		return t.started(ctx, call)
	case voice.EventCallFailed:
		return t.failed(ctx, call, ev)
	case voice.EventCallEnded:
		return t.ended(ctx, call, ev)
	default:
		return nil
	}
}

// lookup matches the event on the provider call id, then on the assistant. A row found
// through its assistant gets the provider id stored so later events match directly.
func (t *Tracker) lookup(ctx context.Context, ev voice.Event) (ScheduledCall, error) {
	call, err := t.repo.FindByProviderCallID(ctx, ev.CallID)
	if !errors.Is(err, ErrNotFound) || ev.AssistantID == "" {
		return call, err
	}
	call, err = t.repo.FindByAssistantID(ctx, ev.AssistantID)
	if err != nil {
		return ScheduledCall{}, err
	}
	if call.ProviderCallID != "" {
		// The assistant already belongs to a different live call.
		return ScheduledCall{}, ErrNotFound
	}
	if err := t.repo.SetProviderCallID(ctx, call.ID, ev.CallID, t.clock().UTC()); err != nil {
		return ScheduledCall{}, fmt.Errorf("store provider call id: %w", err)
	}
	call.ProviderCallID = ev.CallID
	t.log.Info("provider call id recovered from assistant", "call_id", call.ID, "provider_call_id", ev.CallID)
	return call, nil
}

func (t *Tracker) started(ctx context.Context, call ScheduledCall) error {
	moved, err := t.repo.MarkInProgress(ctx, call.ID, t.clock().UTC())
	if err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}
	if moved {
		t.audit.Record(ctx, audit.EventCallStarted, call.CheckID, call.ID, "")
	}
	return nil
}

func (t *Tracker) failed(ctx context.Context, call ScheduledCall, ev voice.Event) error {
	msg := ev.EndedReason
	if msg == "" {
		msg = "call failed"
	}
	won, err := t.repo.MarkFailed(ctx, call.ID, msg, t.clock().UTC())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !won {
		return nil
	}
	t.recordContact(ctx, call, false)
	t.audit.Record(ctx, audit.EventCallFailed, call.CheckID, call.ID, msg)
	t.log.Info("call failed", "call_id", call.ID, "reason", msg)
	return nil
}

func (t *Tracker) ended(ctx context.Context, call ScheduledCall, ev voice.Event) error {
	if call.Status.IsTerminal() {
		t.log.Info("duplicate call end ignored", "call_id", call.ID, "status", call.Status)
		return nil
	}

	rec, err := t.platform.GetCall(ctx, ev.CallID)
	if err != nil {
		return fmt.Errorf("%w: get call %s: %v", ErrPlatform, ev.CallID, err)
	}
	if rec.EndedReason == "" {
		rec.EndedReason = ev.EndedReason
	}

	raw := transcript.Render(rec.Transcript)
	formatted, fellBack := transcript.FormatOrRaw(ctx, t.formatter, raw)
	if fellBack && raw != "" && t.formatter != nil {
		telemetry.FormatterFallbacks.Inc()
		t.log.Warn("transcript formatting unavailable, storing raw", "call_id", call.ID)
	}

	now := t.clock().UTC()
	c := Completion{
		Status:              statusForOutcome(rec.Outcome()),
		DurationSeconds:     rec.DurationSeconds,
		RecordingURL:        rec.RecordingURL,
		Transcript:          raw,
		FormattedTranscript: formatted,
		CompletedAt:         now,
	}
	if c.Status != CallStatusCompleted {
		c.ErrorMessage = rec.EndedReason
	}
	won, err := t.repo.Complete(ctx, call.ID, c)
	if err != nil {
		return fmt.Errorf("complete call: %w", err)
	}
	if !won {
		t.log.Info("call already finalized by another delivery", "call_id", call.ID)
		return nil
	}

	if raw != "" {
		if _, err := t.repo.SaveTranscript(ctx, CallTranscript{
			ID:                uuid.NewString(),
			CallID:            call.ID,
			CheckID:           call.CheckID,
			Raw:               raw,
			Formatted:         formatted,
			FormatterFallback: fellBack,
			CreatedAt:         now,
		}); err != nil {
			t.log.Error("transcript save failed", "err", err, "call_id", call.ID)
		}
		if err := t.archive.PutTranscript(ctx, archive.Record{
			CallID:          call.ID,
			CheckID:         call.CheckID,
			ContactName:     call.ContactName,
			Phone:           call.PhoneNumber,
			Raw:             raw,
			Formatted:       formatted,
			DurationSeconds: c.DurationSeconds,
			RecordingURL:    c.RecordingURL,
			CompletedAt:     now,
		}); err != nil {
			t.log.Error("transcript archive failed", "err", err, "call_id", call.ID)
		}
	}

	t.recordContact(ctx, call, c.Status == CallStatusCompleted)

	evType := audit.EventCallCompleted
	if c.Status != CallStatusCompleted {
		evType = audit.EventCallFailed
	}
	t.audit.Record(ctx, evType, call.CheckID, call.ID, fmt.Sprintf("%s after %ds", c.Status, c.DurationSeconds))
	t.log.Info("call finished", "call_id", call.ID, "status", c.Status, "duration_seconds", c.DurationSeconds)

	if formatted != "" {
		t.notifyCompleted(ctx, call, c)
	}
	return nil
}

func (t *Tracker) notifyCompleted(ctx context.Context, call ScheduledCall, c Completion) {
	if t.sender == nil || t.cfg.NotifyTo == "" {
		return
	}
	log := t.log.With("call_id", call.ID)

	candidate := ""
	if t.checks != nil {
		if check, err := t.checks.GetCheckRecord(ctx, call.CheckID); err == nil {
			candidate = check.CandidateName
		} else {
			log.Warn("check lookup for notification failed", "err", err)
		}
	}
	msg, err := notify.CallCompleted{
		CandidateName:   candidate,
		ReferenceName:   orDefault(call.ContactName, call.PhoneNumber),
		Phone:           call.PhoneNumber,
		DurationMinutes: (c.DurationSeconds + 59) / 60,
		Transcript:      c.FormattedTranscript,
	}.Message(t.cfg.MailFrom, t.cfg.NotifyTo)
	if err != nil {
		log.Error("completion email render failed", "err", err)
		return
	}
	if err := t.sender.Send(ctx, msg); err != nil {
		telemetry.Notifications.WithLabelValues(notify.TemplateCallCompleted, "error").Inc()
		log.Error("completion email send failed", "err", err)
		return
	}
	telemetry.Notifications.WithLabelValues(notify.TemplateCallCompleted, "sent").Inc()
	if _, err := t.repo.MarkNotified(ctx, call.ID, t.clock().UTC()); err != nil {
		log.Warn("mark notified failed", "err", err)
	}
	t.audit.Record(ctx, audit.EventCallNotified, call.CheckID, call.ID, "completion email sent to "+t.cfg.NotifyTo)
}

func (t *Tracker) recordContact(ctx context.Context, call ScheduledCall, succeeded bool) {
	if call.ContactID == "" || t.checks == nil {
		return
	}
	if err := t.checks.RecordContactOutcome(ctx, call.ContactID, succeeded); err != nil {
		t.log.Error("contact outcome update failed", "err", err, "contact_id", call.ContactID)
	}
}

func statusForOutcome(o voice.Outcome) CallStatus {
	switch o {
	case voice.OutcomeNoAnswer:
		return CallStatusNoAnswer
	case voice.OutcomeFailed:
		return CallStatusFailed
	default:
		return CallStatusCompleted
	}
}
