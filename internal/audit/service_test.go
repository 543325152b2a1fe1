package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresSubjectAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	if err := svc.Append(context.Background(), Event{Type: EventCallStarted}); err == nil {
		t.Fatalf("expected error without check or call id")
	}
	if err := svc.Append(context.Background(), Event{CallID: "c"}); err == nil {
		t.Fatalf("expected error without type")
	}
}

func TestService_RecordAppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	svc.Record(context.Background(), EventCallDispatched, "chk", "call", "placed")

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp filled")
	}
	if evs[0].Type != EventCallDispatched || evs[0].CallID != "call" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
	if len(repo.ByType(EventCallDispatched)) != 1 {
		t.Fatalf("expected lookup by type")
	}
}

func TestService_NilRecordIsNoop(t *testing.T) {
	var svc *Service
	svc.Record(context.Background(), EventCallStarted, "chk", "", "")
}
