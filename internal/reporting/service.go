package reporting

import (
	"context"
	"errors"
	"fmt"

	"voiceref/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallSource is the read side of the call store. calls.Repository satisfies it.
type CallSource interface {
	ListByCheck(ctx context.Context, checkID string) ([]calls.ScheduledCall, error)
}

type Service struct {
	calls CallSource
}

func NewService(src CallSource) *Service { return &Service{calls: src} }

// CallsSummary aggregates every call for a check. Average duration only counts calls
// that finished as completed.
func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.CheckID == "" {
		return CallsSummary{}, fmt.Errorf("%w: reference_check_id is required", ErrInvalidRequest)
	}
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, fmt.Errorf("%w: range end must be after start", ErrInvalidRequest)
	}
	if s.calls == nil {
		return CallsSummary{}, errors.New("reporting: call source not configured")
	}

	rows, err := s.calls.ListByCheck(ctx, req.CheckID)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{CheckID: req.CheckID}
	for _, c := range rows {
		if !req.Range.Contains(c.ScheduledTime) {
			continue
		}
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.NotifiedAt != nil {
			out.NotifiedCalls++
		}
		switch c.Status {
		case calls.CallStatusScheduled:
			out.ScheduledCalls++
			if out.NextScheduledAt == nil || c.ScheduledTime.Before(*out.NextScheduledAt) {
				t := c.ScheduledTime
				out.NextScheduledAt = &t
			}
		case calls.CallStatusInProgress:
			out.InProgressCalls++
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
		}
	}
	if out.CompletedCalls > 0 {
		completedDuration := 0
		for _, c := range rows {
			if c.Status == calls.CallStatusCompleted && req.Range.Contains(c.ScheduledTime) {
				completedDuration += c.DurationSeconds
			}
		}
		out.AverageDurationSeconds = completedDuration / out.CompletedCalls
	}
	return out, nil
}
