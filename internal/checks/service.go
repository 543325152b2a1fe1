package checks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"voiceref/internal/audit"
	"voiceref/internal/invite"
	"voiceref/internal/notify"
	"voiceref/internal/questions"
	"voiceref/internal/telemetry"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("checks: not found")
	ErrInvalidArgument  = errors.New("checks: invalid argument")
	ErrConflict         = errors.New("checks: conflict")
	ErrAlreadyCompleted = errors.New("checks: already completed")
)

// Repository is the persistence contract for checks and their contacts.
// Status updates are conditional and report whether a row changed.
type Repository interface {
	CreateCheck(ctx context.Context, c ReferenceCheck) error
	GetCheck(ctx context.Context, id string) (ReferenceCheck, error)
	AdvanceCheckStatus(ctx context.Context, id string, from []CheckStatus, to CheckStatus, now time.Time) (bool, error)
	CompleteCheckIfDone(ctx context.Context, id string, now time.Time) (bool, error)

	CreateContacts(ctx context.Context, cs []ReferenceContact) error
	GetContact(ctx context.Context, id string) (ReferenceContact, error)
	ListContacts(ctx context.Context, checkID string) ([]ReferenceContact, error)
	UpdateContactStatus(ctx context.Context, id string, from []ContactStatus, to ContactStatus, now time.Time) (bool, error)

	// SaveResponses stores one contact's answers at most once; a second set returns ErrConflict.
	SaveResponses(ctx context.Context, rs []ReferenceResponse) error
	ListResponses(ctx context.Context, checkID string) ([]ReferenceResponse, error)
	// DeleteCheck removes a check that never got contacts.
	DeleteCheck(ctx context.Context, id string) error
}

// OpenCalls reports whether a check still has calls scheduled or in progress.
type OpenCalls interface {
	HasOpenCalls(ctx context.Context, checkID string) (bool, error)
}

type ServiceConfig struct {
	// BaseURL is the public origin used in emailed links.
	BaseURL  string
	MailFrom string
}

type Service struct {
	repo      Repository
	questions *questions.Service
	links     *invite.Manager
	sender    notify.Sender
	audit     *audit.Service
	cfg       ServiceConfig
	log       *slog.Logger
	clock     func() time.Time
}

func NewService(repo Repository, qs *questions.Service, links *invite.Manager, sender notify.Sender, auditSvc *audit.Service, cfg ServiceConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{
		repo:      repo,
		questions: qs,
		links:     links,
		sender:    sender,
		audit:     auditSvc,
		cfg:       cfg,
		log:       log,
		clock:     time.Now,
	}
}

// CreateCheck persists a pending check with its question set. References included in
// the request are submitted immediately; otherwise the candidate is emailed a link to add them.
func (s *Service) CreateCheck(ctx context.Context, req CreateCheckRequest) (CheckDetail, error) {
	req.CandidateName = strings.TrimSpace(req.CandidateName)
	req.CandidateEmail = strings.TrimSpace(req.CandidateEmail)
	req.Position = strings.TrimSpace(req.Position)
	req.Company = strings.TrimSpace(req.Company)
	req.JobDescription = strings.TrimSpace(req.JobDescription)

	if err := validateCreate(req); err != nil {
		return CheckDetail{}, err
	}
	if len(req.References) > 0 {
		if err := validateReferences(req.References); err != nil {
			return CheckDetail{}, err
		}
	}

	now := s.clock().UTC()
	check := ReferenceCheck{
		ID:             uuid.NewString(),
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		Position:       req.Position,
		Company:        req.Company,
		JobDescription: req.JobDescription,
		Status:         CheckStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateCheck(ctx, check); err != nil {
		return CheckDetail{}, err
	}

	if _, err := s.questions.CreateForCheck(ctx, check.ID, questions.BuildRequest{
		Position:       check.Position,
		JobDescription: check.JobDescription,
		Custom:         req.CustomQuestions,
	}); err != nil {
		// A check without questions cannot be interviewed; remove it so the request can be retried.
		if derr := s.repo.DeleteCheck(context.WithoutCancel(ctx), check.ID); derr != nil {
			s.log.Error("orphaned check cleanup failed", "err", derr, "check_id", check.ID)
		}
		return CheckDetail{}, fmt.Errorf("create questions: %w", err)
	}
	s.audit.Record(ctx, audit.EventCheckCreated, check.ID, "", "")

	if len(req.References) > 0 {
		return s.SubmitReferences(ctx, check.ID, req.References)
	}

	s.sendCandidateRequest(ctx, check)
	return s.GetCheck(ctx, check.ID)
}

// SubmitReferences attaches 2-5 references to a pending check and emails each one a scheduling link.
// Email failures leave the contact pending and do not fail the request.
func (s *Service) SubmitReferences(ctx context.Context, checkID string, refs []ReferenceInput) (CheckDetail, error) {
	if err := validateReferences(refs); err != nil {
		return CheckDetail{}, err
	}
	check, err := s.repo.GetCheck(ctx, checkID)
	if err != nil {
		return CheckDetail{}, err
	}
	if check.Status != CheckStatusPending {
		return CheckDetail{}, fmt.Errorf("%w: references already submitted", ErrConflict)
	}

	now := s.clock().UTC()
	contacts := make([]ReferenceContact, 0, len(refs))
	for _, r := range refs {
		contacts = append(contacts, ReferenceContact{
			ID:           uuid.NewString(),
			CheckID:      checkID,
			Name:         strings.TrimSpace(r.Name),
			Email:        strings.TrimSpace(r.Email),
			Phone:        strings.TrimSpace(r.Phone),
			Relationship: strings.TrimSpace(r.Relationship),
			Status:       ContactStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	ok, err := s.repo.AdvanceCheckStatus(ctx, checkID, []CheckStatus{CheckStatusPending}, CheckStatusReferencesSubmitted, now)
	if err != nil {
		return CheckDetail{}, err
	}
	if !ok {
		return CheckDetail{}, fmt.Errorf("%w: references already submitted", ErrConflict)
	}
	if err := s.repo.CreateContacts(ctx, contacts); err != nil {
		if _, rerr := s.repo.AdvanceCheckStatus(ctx, checkID, []CheckStatus{CheckStatusReferencesSubmitted}, CheckStatusPending, now); rerr != nil {
			s.log.Error("check status revert failed", "err", rerr, "check_id", checkID)
		}
		return CheckDetail{}, err
	}
	s.audit.Record(ctx, audit.EventReferencesSubmitted, checkID, "", fmt.Sprintf("%d references", len(contacts)))

	for _, c := range contacts {
		s.inviteReference(ctx, check, c)
	}
	return s.GetCheck(ctx, checkID)
}

// SubmitReferencesWithToken resolves a candidate link and submits references for its check.
func (s *Service) SubmitReferencesWithToken(ctx context.Context, token string, refs []ReferenceInput) (CheckDetail, error) {
	checkID, err := s.links.Verify(token, invite.KindCandidate, s.clock())
	if err != nil {
		return CheckDetail{}, err
	}
	return s.SubmitReferences(ctx, checkID, refs)
}

func (s *Service) GetCheck(ctx context.Context, id string) (CheckDetail, error) {
	if strings.TrimSpace(id) == "" {
		return CheckDetail{}, fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}
	check, err := s.repo.GetCheck(ctx, id)
	if err != nil {
		return CheckDetail{}, err
	}
	contacts, err := s.repo.ListContacts(ctx, id)
	if err != nil {
		return CheckDetail{}, err
	}
	qs, err := s.questions.ListByCheck(ctx, id)
	if err != nil {
		return CheckDetail{}, err
	}
	responses, err := s.repo.ListResponses(ctx, id)
	if err != nil {
		return CheckDetail{}, err
	}
	return CheckDetail{Check: check, Contacts: contacts, Questions: qs, Responses: responses}, nil
}

// Questions returns the stored question set for a check.
func (s *Service) Questions(ctx context.Context, checkID string) ([]questions.Question, error) {
	return s.questions.ListByCheck(ctx, checkID)
}

func (s *Service) GetContact(ctx context.Context, id string) (ReferenceContact, error) {
	return s.repo.GetContact(ctx, id)
}

func (s *Service) GetCheckRecord(ctx context.Context, id string) (ReferenceCheck, error) {
	return s.repo.GetCheck(ctx, id)
}

// ResolveReferenceLink verifies a reference link and returns what the reference may see.
func (s *Service) ResolveReferenceLink(ctx context.Context, token string) (ReferenceLink, error) {
	contactID, err := s.links.Verify(token, invite.KindReference, s.clock())
	if err != nil {
		return ReferenceLink{}, err
	}
	contact, err := s.repo.GetContact(ctx, contactID)
	if err != nil {
		return ReferenceLink{}, err
	}
	check, err := s.repo.GetCheck(ctx, contact.CheckID)
	if err != nil {
		return ReferenceLink{}, err
	}
	if contact.Status.IsTerminal() || check.Status == CheckStatusCompleted {
		return ReferenceLink{}, ErrAlreadyCompleted
	}
	qs, err := s.questions.ListByCheck(ctx, check.ID)
	if err != nil {
		return ReferenceLink{}, err
	}
	return ReferenceLink{Check: check, Contact: contact, Questions: qs}, nil
}

// CompleteWithResponses stores the answers a reference typed in through their link and
// finishes the contact without a phone call. Answers pair with the check's questions by
// position; blank answers are dropped.
func (s *Service) CompleteWithResponses(ctx context.Context, token string, answers []string) ([]ReferenceResponse, error) {
	link, err := s.ResolveReferenceLink(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(answers) > len(link.Questions) {
		return nil, fmt.Errorf("%w: got %d answers for %d questions", ErrInvalidArgument, len(answers), len(link.Questions))
	}

	now := s.clock().UTC()
	rs := make([]ReferenceResponse, 0, len(answers))
	for i, a := range answers {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		q := link.Questions[i]
		rs = append(rs, ReferenceResponse{
			ID:         uuid.NewString(),
			CheckID:    link.Check.ID,
			ContactID:  link.Contact.ID,
			QuestionID: q.ID,
			Question:   q.Text,
			Answer:     a,
			Order:      i + 1,
			CreatedAt:  now,
		})
	}
	if len(rs) == 0 {
		return nil, fmt.Errorf("%w: at least one answer is required", ErrInvalidArgument)
	}

	if err := s.repo.SaveResponses(ctx, rs); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrAlreadyCompleted
		}
		return nil, err
	}
	s.audit.Record(ctx, audit.EventResponsesSubmitted, link.Check.ID, "", fmt.Sprintf("%d answers from %s", len(rs), link.Contact.ID))

	if err := s.RecordContactOutcome(ctx, link.Contact.ID, true); err != nil {
		return nil, err
	}
	return rs, nil
}

// MarkContactScheduled records that a call was booked for the contact and moves the check in progress.
func (s *Service) MarkContactScheduled(ctx context.Context, contactID string) error {
	now := s.clock().UTC()
	contact, err := s.repo.GetContact(ctx, contactID)
	if err != nil {
		return err
	}
	if _, err := s.repo.UpdateContactStatus(ctx, contactID,
		[]ContactStatus{ContactStatusPending, ContactStatusInvitationSent},
		ContactStatusScheduled, now); err != nil {
		return err
	}
	_, err = s.repo.AdvanceCheckStatus(ctx, contact.CheckID,
		[]CheckStatus{CheckStatusPending, CheckStatusReferencesSubmitted},
		CheckStatusInProgress, now)
	return err
}

// RecordContactOutcome moves the contact to a terminal state. The check completes once all
// of its contacts are terminal and none of its calls is still open. Calling it again for a
// terminal contact only re-evaluates completion.
func (s *Service) RecordContactOutcome(ctx context.Context, contactID string, succeeded bool) error {
	now := s.clock().UTC()
	contact, err := s.repo.GetContact(ctx, contactID)
	if err != nil {
		return err
	}

	to := ContactStatusFailed
	if succeeded {
		to = ContactStatusCompleted
	}
	if _, err := s.repo.UpdateContactStatus(ctx, contactID, nonTerminalContactStatuses, to, now); err != nil {
		return err
	}

	if _, err := s.repo.AdvanceCheckStatus(ctx, contact.CheckID,
		[]CheckStatus{CheckStatusPending, CheckStatusReferencesSubmitted},
		CheckStatusInProgress, now); err != nil {
		return err
	}
	done, err := s.repo.CompleteCheckIfDone(ctx, contact.CheckID, now)
	if err != nil {
		return err
	}
	if done {
		s.log.Info("reference check completed", "check_id", contact.CheckID)
		s.audit.Record(ctx, audit.EventCheckCompleted, contact.CheckID, "", "")
	}
	return nil
}

func (s *Service) sendCandidateRequest(ctx context.Context, check ReferenceCheck) {
	token, err := s.links.Issue(s.clock(), invite.KindCandidate, check.ID)
	if err != nil {
		s.log.Error("candidate link issue failed", "err", err, "check_id", check.ID)
		return
	}
	msg, err := notify.CandidateRequest{
		CandidateName:  check.CandidateName,
		CandidateEmail: check.CandidateEmail,
		Company:        check.Company,
		Position:       check.Position,
		Link:           s.cfg.BaseURL + "/candidate/" + token,
		ExpiresDays:    s.linkDays(),
	}.Message(s.cfg.MailFrom)
	if err != nil {
		s.log.Error("candidate email render failed", "err", err, "check_id", check.ID)
		return
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		telemetry.Notifications.WithLabelValues(notify.TemplateCandidateRequest, "error").Inc()
		s.log.Warn("candidate email failed", "err", err, "check_id", check.ID)
		return
	}
	telemetry.Notifications.WithLabelValues(notify.TemplateCandidateRequest, "sent").Inc()
}

func (s *Service) inviteReference(ctx context.Context, check ReferenceCheck, c ReferenceContact) {
	log := s.log.With("check_id", check.ID, "contact_id", c.ID)

	token, err := s.links.Issue(s.clock(), invite.KindReference, c.ID)
	if err != nil {
		log.Error("reference link issue failed", "err", err)
		return
	}
	msg, err := notify.ReferenceInvitation{
		ReferenceName:  c.Name,
		ReferenceEmail: c.Email,
		CandidateName:  check.CandidateName,
		Company:        check.Company,
		Position:       check.Position,
		Link:           s.cfg.BaseURL + "/reference/" + token,
		ExpiresDays:    s.linkDays(),
	}.Message(s.cfg.MailFrom)
	if err != nil {
		log.Error("reference email render failed", "err", err)
		return
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		telemetry.Notifications.WithLabelValues(notify.TemplateReferenceInvitation, "error").Inc()
		log.Warn("reference invitation failed", "err", err)
		return
	}
	telemetry.Notifications.WithLabelValues(notify.TemplateReferenceInvitation, "sent").Inc()

	if _, err := s.repo.UpdateContactStatus(ctx, c.ID, []ContactStatus{ContactStatusPending}, ContactStatusInvitationSent, s.clock().UTC()); err != nil {
		log.Warn("contact status update failed", "err", err)
	}
}

func (s *Service) linkDays() int {
	return int(s.links.TTL() / (24 * time.Hour))
}

func validateCreate(req CreateCheckRequest) error {
	var missing []string
	if req.CandidateName == "" {
		missing = append(missing, "candidate_name")
	}
	if req.CandidateEmail == "" {
		missing = append(missing, "candidate_email")
	}
	if req.Position == "" {
		missing = append(missing, "position")
	}
	if req.Company == "" {
		missing = append(missing, "company")
	}
	if req.JobDescription == "" {
		missing = append(missing, "job_description")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrInvalidArgument, strings.Join(missing, ", "))
	}
	if !validEmail(req.CandidateEmail) {
		return fmt.Errorf("%w: candidate_email is not a valid email address", ErrInvalidArgument)
	}
	return nil
}

func validateReferences(refs []ReferenceInput) error {
	if len(refs) < MinReferences || len(refs) > MaxReferences {
		return fmt.Errorf("%w: between %d and %d references are required, got %d", ErrInvalidArgument, MinReferences, MaxReferences, len(refs))
	}
	for i, r := range refs {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%w: reference %d: name is required", ErrInvalidArgument, i+1)
		}
		if !validEmail(strings.TrimSpace(r.Email)) {
			return fmt.Errorf("%w: reference %d: a valid email is required", ErrInvalidArgument, i+1)
		}
	}
	return nil
}

func validEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
