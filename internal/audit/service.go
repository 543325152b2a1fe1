package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; no Update/Delete methods exist.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal lifecycle events. Records are not exposed to candidates or references.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.CheckID == "" && e.CallID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event and logs, rather than returns, any failure.
// A nil Service is a no-op.
func (s *Service) Record(ctx context.Context, t EventType, checkID, callID, message string) {
	if s == nil {
		return
	}
	if err := s.Append(ctx, Event{Type: t, CheckID: checkID, CallID: callID, Message: message}); err != nil {
		s.log.Warn("audit append failed", "err", err, "type", t, "check_id", checkID, "call_id", callID)
	}
}
