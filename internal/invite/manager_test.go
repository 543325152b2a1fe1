package invite

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager("secret", 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.TTL() != 14*24*time.Hour {
		t.Fatalf("expected 14 day default ttl, got %s", m.TTL())
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, KindReference, "contact-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, err := m.Verify(tok, KindReference, now.Add(13*24*time.Hour))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != "contact-1" {
		t.Fatalf("expected contact-1, got %q", id)
	}
}

func TestVerify_Expired(t *testing.T) {
	m, _ := NewManager("secret", time.Hour)
	now := time.Unix(1700000000, 0).UTC()
	tok, _ := m.Issue(now, KindCandidate, "chk-1")

	if _, err := m.Verify(tok, KindCandidate, now.Add(2*time.Hour)); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}
}

func TestVerify_KindMismatchAndTamper(t *testing.T) {
	m, _ := NewManager("secret", time.Hour)
	other, _ := NewManager("other-secret", time.Hour)
	now := time.Unix(1700000000, 0).UTC()
	tok, _ := m.Issue(now, KindCandidate, "chk-1")

	if _, err := m.Verify(tok, KindReference, now); !errors.Is(err, ErrLinkInvalid) {
		t.Fatalf("expected ErrLinkInvalid for kind mismatch, got %v", err)
	}
	if _, err := other.Verify(tok, KindCandidate, now); !errors.Is(err, ErrLinkInvalid) {
		t.Fatalf("expected ErrLinkInvalid for wrong key, got %v", err)
	}
	if _, err := m.Verify("not-a-token", KindCandidate, now); !errors.Is(err, ErrLinkInvalid) {
		t.Fatalf("expected ErrLinkInvalid for garbage, got %v", err)
	}
}

func TestNewManager_RequiresSecret(t *testing.T) {
	if _, err := NewManager("", time.Hour); err == nil {
		t.Fatalf("expected error")
	}
}
