package reporting

import "time"

// TimeRange filters by scheduled time. A zero range means no filter.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Contains is inclusive of From and exclusive of To; an open side is unbounded.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// CallsSummaryRequest requests aggregated call metrics for one reference check.
type CallsSummaryRequest struct {
	CheckID string    `json:"reference_check_id"`
	Range   TimeRange `json:"range"`
}

type CallsSummary struct {
	CheckID string `json:"reference_check_id"`

	TotalCalls      int `json:"total_calls"`
	ScheduledCalls  int `json:"scheduled_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`
	NotifiedCalls int `json:"notified_calls"`

	// NextScheduledAt is the earliest pending call, if any.
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`
}
