package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"voiceref/internal/calls"
)

func seed(t *testing.T, now time.Time) *calls.MemoryRepo {
	t.Helper()
	repo := calls.NewMemoryRepo()
	notified := now
	rows := []calls.ScheduledCall{
		{ID: "c1", CheckID: "chk", ScheduledTime: now.Add(-3 * time.Hour), Status: calls.CallStatusCompleted, DurationSeconds: 600, RecordingURL: "https://rec/1", NotifiedAt: &notified},
		{ID: "c2", CheckID: "chk", ScheduledTime: now.Add(-2 * time.Hour), Status: calls.CallStatusCompleted, DurationSeconds: 900, RecordingURL: "https://rec/2"},
		{ID: "c3", CheckID: "chk", ScheduledTime: now.Add(-time.Hour), Status: calls.CallStatusNoAnswer, DurationSeconds: 30},
		{ID: "c4", CheckID: "chk", ScheduledTime: now.Add(2 * time.Hour), Status: calls.CallStatusScheduled},
		{ID: "c5", CheckID: "chk", ScheduledTime: now.Add(time.Hour), Status: calls.CallStatusScheduled},
		{ID: "c6", CheckID: "other", ScheduledTime: now, Status: calls.CallStatusFailed},
	}
	for _, c := range rows {
		if err := repo.Create(context.Background(), c); err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}
	return repo
}

func TestCallsSummary_CountsPerCheck(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(seed(t, now))

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{CheckID: "chk"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 5 {
		t.Fatalf("expected 5 calls, got %d", out.TotalCalls)
	}
	if out.CompletedCalls != 2 || out.NoAnswerCalls != 1 || out.ScheduledCalls != 2 || out.FailedCalls != 0 {
		t.Fatalf("unexpected status counts: %+v", out)
	}
	if out.TotalDurationSeconds != 1530 {
		t.Fatalf("expected total 1530s, got %d", out.TotalDurationSeconds)
	}
	if out.AverageDurationSeconds != 750 {
		t.Fatalf("expected average of completed calls 750s, got %d", out.AverageDurationSeconds)
	}
	if out.RecordedCalls != 2 || out.NotifiedCalls != 1 {
		t.Fatalf("unexpected recorded/notified counts: %+v", out)
	}
	if out.NextScheduledAt == nil || !out.NextScheduledAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected next scheduled in one hour, got %v", out.NextScheduledAt)
	}
}

func TestCallsSummary_RangeFilter(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(seed(t, now))

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		CheckID: "chk",
		Range:   TimeRange{From: now.Add(-150 * time.Minute), To: now},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 2 || out.CompletedCalls != 1 || out.NoAnswerCalls != 1 {
		t.Fatalf("unexpected filtered summary: %+v", out)
	}
}

func TestCallsSummary_Validation(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo())
	now := time.Now()

	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for missing check, got %v", err)
	}
	_, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{CheckID: "chk", Range: TimeRange{From: now, To: now.Add(-time.Hour)}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for inverted range, got %v", err)
	}

	empty, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{CheckID: "none"})
	if err != nil || empty.TotalCalls != 0 || empty.AverageDurationSeconds != 0 {
		t.Fatalf("expected empty summary, got %+v err=%v", empty, err)
	}
}
