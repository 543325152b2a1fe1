package calls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voiceref/internal/checks"
	"voiceref/internal/questions"
	"voiceref/internal/transcript"
	"voiceref/internal/voice"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fakePlatform struct {
	mu sync.Mutex

	assistants map[string]voice.AssistantConfig
	deleted    []string
	placed     []voice.PlaceCallRequest
	records    map[string]voice.CallRecord
	getCalls   int

	createErr error
	placeErr  map[string]error
	next      int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		assistants: map[string]voice.AssistantConfig{},
		records:    map[string]voice.CallRecord{},
		placeErr:   map[string]error{},
	}
}

func (f *fakePlatform) CreateAssistant(ctx context.Context, cfg voice.AssistantConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	id := fmt.Sprintf("asst-%d", f.next)
	f.assistants[id] = cfg
	return id, nil
}

func (f *fakePlatform) DeleteAssistant(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assistants, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakePlatform) PlaceCall(ctx context.Context, req voice.PlaceCallRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.placeErr[req.PhoneNumber]; err != nil {
		return "", err
	}
	f.placed = append(f.placed, req)
	f.next++
	return fmt.Sprintf("pc-%d", f.next), nil
}

func (f *fakePlatform) GetCall(ctx context.Context, id string) (voice.CallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	rec, ok := f.records[id]
	if !ok {
		return voice.CallRecord{}, voice.ErrNotFound
	}
	return rec, nil
}

func (f *fakePlatform) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

type outcome struct {
	contactID string
	succeeded bool
}

type fakeDirectory struct {
	mu        sync.Mutex
	checks    map[string]checks.ReferenceCheck
	contacts  map[string]checks.ReferenceContact
	questions map[string][]questions.Question

	scheduled []string
	outcomes  []outcome
}

func newFakeDirectory() *fakeDirectory {
	d := &fakeDirectory{
		checks:    map[string]checks.ReferenceCheck{},
		contacts:  map[string]checks.ReferenceContact{},
		questions: map[string][]questions.Question{},
	}
	d.checks["chk-1"] = checks.ReferenceCheck{
		ID:             "chk-1",
		CandidateName:  "Ada Lovelace",
		Position:       "Staff Engineer",
		Company:        "Analytical Engines",
		JobDescription: "Build the engine.",
		Status:         checks.CheckStatusReferencesSubmitted,
	}
	d.contacts["ref-1"] = checks.ReferenceContact{
		ID:      "ref-1",
		CheckID: "chk-1",
		Name:    "Charles Babbage",
		Email:   "charles@example.com",
		Phone:   "(650) 253-0000",
		Status:  checks.ContactStatusInvitationSent,
	}
	d.questions["chk-1"] = questions.StandardQuestions("Staff Engineer")
	return d
}

func (d *fakeDirectory) GetCheckRecord(ctx context.Context, id string) (checks.ReferenceCheck, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.checks[id]
	if !ok {
		return checks.ReferenceCheck{}, checks.ErrNotFound
	}
	return c, nil
}

func (d *fakeDirectory) GetContact(ctx context.Context, id string) (checks.ReferenceContact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.contacts[id]
	if !ok {
		return checks.ReferenceContact{}, checks.ErrNotFound
	}
	return c, nil
}

func (d *fakeDirectory) Questions(ctx context.Context, checkID string) ([]questions.Question, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.questions[checkID], nil
}

func (d *fakeDirectory) MarkContactScheduled(ctx context.Context, contactID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scheduled = append(d.scheduled, contactID)
	return nil
}

func (d *fakeDirectory) RecordContactOutcome(ctx context.Context, contactID string, succeeded bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcomes = append(d.outcomes, outcome{contactID: contactID, succeeded: succeeded})
	return nil
}

type fakeFormatter struct {
	out string
	err error
}

func (f fakeFormatter) Format(ctx context.Context, raw string) (string, error) {
	return f.out, f.err
}

var _ transcript.Formatter = fakeFormatter{}

// failingCreateRepo fails every insert.
type failingCreateRepo struct {
	*MemoryRepo
}

func (r failingCreateRepo) Create(ctx context.Context, c ScheduledCall) error {
	return errors.New("db unavailable")
}
