package checks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voiceref/internal/audit"
	"voiceref/internal/invite"
	"voiceref/internal/notify"
	"voiceref/internal/questions"
)

type fixture struct {
	svc    *Service
	repo   *MemoryRepo
	sender *notify.MemorySender
	links  *invite.Manager
	audit  *audit.MemoryRepo
	now    time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := NewMemoryRepo()
	sender := notify.NewMemorySender()
	links, err := invite.NewManager("secret", 14*24*time.Hour)
	if err != nil {
		t.Fatalf("invite manager: %v", err)
	}
	auditRepo := audit.NewMemoryRepo()
	qsvc := questions.NewService(questions.NewMemoryRepo(), questions.NewBuilder(nil, nil))

	svc := NewService(repo, qsvc, links, sender, audit.NewService(auditRepo, nil), ServiceConfig{BaseURL: "https://app.test/", MailFrom: "VoiceRef <noreply@voiceref.test>"}, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }
	return fixture{svc: svc, repo: repo, sender: sender, links: links, audit: auditRepo, now: now}
}

func validRequest() CreateCheckRequest {
	return CreateCheckRequest{
		CandidateName:  "Ada Lovelace",
		CandidateEmail: "ada@example.com",
		Position:       "Staff Engineer",
		Company:        "Analytical Engines",
		JobDescription: "Lead the compiler team.",
	}
}

func twoRefs() []ReferenceInput {
	return []ReferenceInput{
		{Name: "Grace Hopper", Email: "grace@example.com", Phone: "+16502530000", Relationship: "Manager"},
		{Name: "Alan Turing", Email: "alan@example.com"},
	}
}

func TestCreateCheck_EmailsCandidateLink(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.CreateCheck(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Check.Status != CheckStatusPending {
		t.Fatalf("expected pending, got %s", d.Check.Status)
	}
	// Standard set plus fallback set (no generator configured).
	if len(d.Questions) != 16 {
		t.Fatalf("expected 16 questions, got %d", len(d.Questions))
	}

	sent := f.sender.Sent()
	if len(sent) != 1 || sent[0].To != "ada@example.com" {
		t.Fatalf("expected one candidate email, got %+v", sent)
	}
	if !strings.Contains(sent[0].HTML, "https://app.test/candidate/") {
		t.Fatalf("expected candidate link in email")
	}
	if len(f.audit.ByType(audit.EventCheckCreated)) != 1 {
		t.Fatalf("expected check_created audit event")
	}
}

func TestCreateCheck_ValidationHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Company = ""
	req.CandidateEmail = "nope"
	_, err := f.svc.CreateCheck(context.Background(), req)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if !strings.Contains(err.Error(), "company") {
		t.Fatalf("expected missing field named, got %v", err)
	}

	req = validRequest()
	req.References = twoRefs()[:1]
	if _, err := f.svc.CreateCheck(context.Background(), req); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected reference count error, got %v", err)
	}
	if len(f.repo.checks) != 0 || len(f.sender.Sent()) != 0 {
		t.Fatalf("expected no persistence or email on validation failure")
	}
}

func TestCreateCheck_WithReferencesInvitesEach(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.References = twoRefs()

	d, err := f.svc.CreateCheck(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Check.Status != CheckStatusReferencesSubmitted {
		t.Fatalf("expected references_submitted, got %s", d.Check.Status)
	}
	if len(d.Contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(d.Contacts))
	}
	for _, c := range d.Contacts {
		if c.Status != ContactStatusInvitationSent {
			t.Fatalf("expected invitation_sent, got %s", c.Status)
		}
	}
	if len(f.sender.Sent()) != 2 {
		t.Fatalf("expected 2 invitation emails, got %d", len(f.sender.Sent()))
	}
}

func TestSubmitReferences_EmailFailureLeavesContactPending(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.CreateCheck(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	f.sender.Err = errors.New("resend down")

	out, err := f.svc.SubmitReferences(context.Background(), d.Check.ID, twoRefs())
	if err != nil {
		t.Fatalf("expected email failures to be absorbed, got %v", err)
	}
	for _, c := range out.Contacts {
		if c.Status != ContactStatusPending {
			t.Fatalf("expected pending after failed email, got %s", c.Status)
		}
	}

	if _, err := f.svc.SubmitReferences(context.Background(), d.Check.ID, twoRefs()); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on second submit, got %v", err)
	}
}

func TestSubmitReferencesWithToken(t *testing.T) {
	f := newFixture(t)
	d, _ := f.svc.CreateCheck(context.Background(), validRequest())

	tok, err := f.links.Issue(f.now, invite.KindCandidate, d.Check.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.svc.SubmitReferencesWithToken(context.Background(), tok, twoRefs()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	refTok, _ := f.links.Issue(f.now, invite.KindReference, "contact-x")
	if _, err := f.svc.SubmitReferencesWithToken(context.Background(), refTok, twoRefs()); !errors.Is(err, invite.ErrLinkInvalid) {
		t.Fatalf("expected reference token to be rejected, got %v", err)
	}
}

func TestGetCheck_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.GetCheck(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveReferenceLink(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.References = twoRefs()
	d, _ := f.svc.CreateCheck(context.Background(), req)
	contact := d.Contacts[0]

	tok, _ := f.links.Issue(f.now, invite.KindReference, contact.ID)
	link, err := f.svc.ResolveReferenceLink(context.Background(), tok)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if link.Contact.ID != contact.ID || link.Check.ID != d.Check.ID || len(link.Questions) == 0 {
		t.Fatalf("unexpected link: %+v", link)
	}

	if err := f.svc.RecordContactOutcome(context.Background(), contact.ID, true); err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if _, err := f.svc.ResolveReferenceLink(context.Background(), tok); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	expired, _ := f.links.Issue(f.now.Add(-15*24*time.Hour), invite.KindReference, contact.ID)
	if _, err := f.svc.ResolveReferenceLink(context.Background(), expired); !errors.Is(err, invite.ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}
}

func TestRecordContactOutcome_CompletesOnlyWhenAllTerminal(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.References = twoRefs()
	d, _ := f.svc.CreateCheck(context.Background(), req)

	if err := f.svc.MarkContactScheduled(context.Background(), d.Contacts[0].ID); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	got, _ := f.svc.GetCheck(context.Background(), d.Check.ID)
	if got.Check.Status != CheckStatusInProgress || got.Contacts[0].Status != ContactStatusScheduled {
		t.Fatalf("expected in_progress/scheduled, got %s/%s", got.Check.Status, got.Contacts[0].Status)
	}

	if err := f.svc.RecordContactOutcome(context.Background(), d.Contacts[0].ID, true); err != nil {
		t.Fatalf("outcome: %v", err)
	}
	got, _ = f.svc.GetCheck(context.Background(), d.Check.ID)
	if got.Check.Status != CheckStatusInProgress {
		t.Fatalf("expected still in_progress with one open contact, got %s", got.Check.Status)
	}

	if err := f.svc.RecordContactOutcome(context.Background(), d.Contacts[1].ID, false); err != nil {
		t.Fatalf("outcome: %v", err)
	}
	got, _ = f.svc.GetCheck(context.Background(), d.Check.ID)
	if got.Check.Status != CheckStatusCompleted || got.Check.CompletedAt == nil {
		t.Fatalf("expected completed with timestamp, got %+v", got.Check)
	}
	if got.Contacts[1].Status != ContactStatusFailed {
		t.Fatalf("expected failed contact, got %s", got.Contacts[1].Status)
	}

	// Terminal contacts never move again.
	if err := f.svc.RecordContactOutcome(context.Background(), d.Contacts[1].ID, true); err != nil {
		t.Fatalf("outcome: %v", err)
	}
	c, _ := f.repo.GetContact(context.Background(), d.Contacts[1].ID)
	if c.Status != ContactStatusFailed {
		t.Fatalf("expected terminal contact unchanged, got %s", c.Status)
	}
	if len(f.audit.ByType(audit.EventCheckCompleted)) != 1 {
		t.Fatalf("expected exactly one check_completed event")
	}
}

type failingQuestionRepo struct{}

func (failingQuestionRepo) InsertBatch(ctx context.Context, qs []questions.Question) error {
	return errors.New("questions table unavailable")
}

func (failingQuestionRepo) ListByCheck(ctx context.Context, checkID string) ([]questions.Question, error) {
	return nil, nil
}

func TestCreateCheck_QuestionFailureRemovesCheck(t *testing.T) {
	repo := NewMemoryRepo()
	links, _ := invite.NewManager("secret", 0)
	sender := notify.NewMemorySender()
	qsvc := questions.NewService(failingQuestionRepo{}, questions.NewBuilder(nil, nil))
	svc := NewService(repo, qsvc, links, sender, nil, ServiceConfig{}, nil)

	if _, err := svc.CreateCheck(context.Background(), validRequest()); err == nil {
		t.Fatalf("expected question failure to surface")
	}
	if len(repo.checks) != 0 {
		t.Fatalf("expected no orphaned check, got %d", len(repo.checks))
	}
	if len(sender.Sent()) != 0 {
		t.Fatalf("expected no candidate email")
	}
}

type stubOpenCalls struct {
	open bool
}

func (s *stubOpenCalls) HasOpenCalls(ctx context.Context, checkID string) (bool, error) {
	return s.open, nil
}

func TestRecordContactOutcome_WaitsForOpenCalls(t *testing.T) {
	f := newFixture(t)
	calls := &stubOpenCalls{open: true}
	f.repo.Calls = calls
	req := validRequest()
	req.References = twoRefs()
	d, _ := f.svc.CreateCheck(context.Background(), req)

	for _, c := range d.Contacts {
		if err := f.svc.RecordContactOutcome(context.Background(), c.ID, false); err != nil {
			t.Fatalf("outcome: %v", err)
		}
	}
	got, _ := f.svc.GetCheck(context.Background(), d.Check.ID)
	if got.Check.Status == CheckStatusCompleted {
		t.Fatalf("check completed while a call is still open")
	}

	// The last open call finishing re-evaluates completion through its terminal contact.
	calls.open = false
	if err := f.svc.RecordContactOutcome(context.Background(), d.Contacts[0].ID, false); err != nil {
		t.Fatalf("outcome: %v", err)
	}
	got, _ = f.svc.GetCheck(context.Background(), d.Check.ID)
	if got.Check.Status != CheckStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Check.Status)
	}
}

func TestCompleteWithResponses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := validRequest()
	req.References = twoRefs()
	d, _ := f.svc.CreateCheck(ctx, req)
	grace, alan := d.Contacts[0], d.Contacts[1]
	tok, _ := f.links.Issue(f.now, invite.KindReference, alan.ID)

	if _, err := f.svc.CompleteWithResponses(ctx, tok, []string{" ", ""}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for blank answers, got %v", err)
	}
	if _, err := f.svc.CompleteWithResponses(ctx, tok, make([]string, len(d.Questions)+1)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for extra answers, got %v", err)
	}

	rs, err := f.svc.CompleteWithResponses(ctx, tok, []string{"Strong engineer.", "", " Led the compiler rewrite. "})
	if err != nil {
		t.Fatalf("CompleteWithResponses: %v", err)
	}
	if len(rs) != 2 || rs[0].Order != 1 || rs[1].Order != 3 || rs[1].Answer != "Led the compiler rewrite." {
		t.Fatalf("unexpected responses %+v", rs)
	}
	if rs[1].QuestionID != d.Questions[2].ID || rs[1].Question != d.Questions[2].Text {
		t.Fatalf("answer not paired with its question: %+v", rs[1])
	}

	got, _ := f.svc.GetCheck(ctx, d.Check.ID)
	if got.Contacts[1].Status != ContactStatusCompleted || len(got.Responses) != 2 {
		t.Fatalf("expected completed contact with responses, got %+v", got)
	}
	if got.Check.Status != CheckStatusInProgress {
		t.Fatalf("expected check in_progress with one open contact, got %s", got.Check.Status)
	}
	if _, err := f.svc.CompleteWithResponses(ctx, tok, []string{"Again."}); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted on resubmit, got %v", err)
	}

	graceTok, _ := f.links.Issue(f.now, invite.KindReference, grace.ID)
	if _, err := f.svc.CompleteWithResponses(ctx, graceTok, []string{"Reliable."}); err != nil {
		t.Fatalf("CompleteWithResponses: %v", err)
	}
	got, _ = f.svc.GetCheck(ctx, d.Check.ID)
	if got.Check.Status != CheckStatusCompleted {
		t.Fatalf("expected completed check, got %s", got.Check.Status)
	}
	if len(f.audit.ByType(audit.EventResponsesSubmitted)) != 2 {
		t.Fatalf("expected two responses_submitted events")
	}
}

func TestMemoryRepo_SaveResponsesOncePerContact(t *testing.T) {
	repo := NewMemoryRepo()
	rs := []ReferenceResponse{{ID: "r1", CheckID: "chk", ContactID: "c1", Answer: "yes", Order: 1}}
	if err := repo.SaveResponses(context.Background(), rs); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := repo.SaveResponses(context.Background(), rs); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}
