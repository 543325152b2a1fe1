package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"voiceref/internal/audit"
	"voiceref/internal/checks"
	"voiceref/internal/voice"
	"voiceref/pkg/utils"
)

func seedCall(t *testing.T, repo *MemoryRepo, id, phone string, at time.Time) {
	t.Helper()
	err := repo.Create(context.Background(), ScheduledCall{
		ID:            id,
		CheckID:       "chk-1",
		PhoneNumber:   phone,
		ScheduledTime: at,
		AssistantID:   "asst-" + id,
		Status:        CallStatusScheduled,
		CreatedAt:     testNow.Add(-time.Hour),
		UpdatedAt:     testNow.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func newTestDispatcher(repo Repository, p *fakePlatform, locker Locker, auditRepo *audit.MemoryRepo) *Dispatcher {
	d := NewDispatcher(repo, newFakeDirectory(), p, locker, audit.NewService(auditRepo, nil), DispatcherConfig{Concurrency: 4}, nil)
	d.clock = fixedClock
	return d
}

func TestDispatcher_DispatchesDueCall(t *testing.T) {
	repo := NewMemoryRepo()
	p := newFakePlatform()
	seedCall(t, repo, "c1", "+16502530000", testNow.Add(-time.Second))

	d := newTestDispatcher(repo, p, nil, audit.NewMemoryRepo())
	report, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Scanned != 1 || report.Dispatched != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	got, _ := repo.Get(context.Background(), "c1")
	if got.Status != CallStatusInProgress {
		t.Fatalf("expected in_progress, got %s", got.Status)
	}
	if got.ProviderCallID == "" || got.ProviderCallID != report.Results[0].ProviderCallID {
		t.Fatalf("provider call id not stored: %+v", got)
	}
	if got.DispatchedAt == nil || !got.DispatchedAt.Equal(testNow) {
		t.Fatalf("expected dispatched_at set, got %v", got.DispatchedAt)
	}
}

func TestDispatcher_SecondScanDoesNotRedispatch(t *testing.T) {
	repo := NewMemoryRepo()
	p := newFakePlatform()
	seedCall(t, repo, "c1", "+16502530000", testNow.Add(-time.Minute))

	d := newTestDispatcher(repo, p, nil, audit.NewMemoryRepo())
	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	report, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if report.Scanned != 0 {
		t.Fatalf("expected nothing due on second scan, got %+v", report)
	}
	if p.placedCount() != 1 {
		t.Fatalf("expected exactly one placed call, got %d", p.placedCount())
	}
}

func TestDispatcher_IsolatesItemFailures(t *testing.T) {
	repo := NewMemoryRepo()
	p := newFakePlatform()
	p.placeErr["+16502530001"] = errors.New("number unreachable")
	seedCall(t, repo, "ok", "+16502530000", testNow.Add(-time.Minute))
	seedCall(t, repo, "bad", "+16502530001", testNow.Add(-time.Minute))
	auditRepo := audit.NewMemoryRepo()

	report, err := newTestDispatcher(repo, p, nil, auditRepo).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Dispatched != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	bad, _ := repo.Get(context.Background(), "bad")
	if bad.Status != CallStatusFailed || bad.ErrorMessage != "number unreachable" {
		t.Fatalf("expected failed with message, got %+v", bad)
	}
	ok, _ := repo.Get(context.Background(), "ok")
	if ok.Status != CallStatusInProgress {
		t.Fatalf("expected healthy call in_progress, got %s", ok.Status)
	}
	if len(auditRepo.ByType(audit.EventCallDispatchFailed)) != 1 {
		t.Fatalf("expected dispatch failure audit")
	}

	// Failed calls are not re-queued.
	again, _ := newTestDispatcher(repo, p, nil, auditRepo).RunOnce(context.Background())
	if again.Scanned != 0 {
		t.Fatalf("failed call was rescanned: %+v", again)
	}
}

func TestDispatcher_IgnoresFutureCalls(t *testing.T) {
	repo := NewMemoryRepo()
	p := newFakePlatform()
	seedCall(t, repo, "later", "+16502530000", testNow.Add(10*time.Minute))

	report, err := newTestDispatcher(repo, p, nil, audit.NewMemoryRepo()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Scanned != 0 || p.placedCount() != 0 {
		t.Fatalf("future call dispatched: %+v", report)
	}
}

func TestDispatcher_LookaheadIncludesSoonCalls(t *testing.T) {
	repo := NewMemoryRepo()
	p := newFakePlatform()
	seedCall(t, repo, "soon", "+16502530000", testNow.Add(5*time.Minute))

	d := NewDispatcher(repo, nil, p, nil, nil, DispatcherConfig{Lookahead: 10 * time.Minute}, nil)
	d.clock = fixedClock
	report, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Dispatched != 1 {
		t.Fatalf("expected call within lookahead dispatched, got %+v", report)
	}
}

func TestDispatcher_SkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := utils.NewRedisLocker(rdb)

	unlock, ok, err := locker.TryLock(context.Background(), "voiceref:dispatch:lock", time.Minute)
	if err != nil || !ok {
		t.Fatalf("pre-lock failed: ok=%v err=%v", ok, err)
	}

	repo := NewMemoryRepo()
	p := newFakePlatform()
	seedCall(t, repo, "c1", "+16502530000", testNow.Add(-time.Minute))
	d := newTestDispatcher(repo, p, locker, audit.NewMemoryRepo())

	report, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !report.Locked || p.placedCount() != 0 {
		t.Fatalf("expected locked scan without dispatch, got %+v", report)
	}

	if err := unlock(context.Background()); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	report, err = d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce after unlock: %v", err)
	}
	if report.Dispatched != 1 {
		t.Fatalf("expected dispatch after unlock, got %+v", report)
	}
}

// ctxRepo fails writes on a cancelled context, like a database driver does.
type ctxRepo struct {
	*MemoryRepo
}

func (r ctxRepo) MarkFailed(ctx context.Context, id, message string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.MemoryRepo.MarkFailed(ctx, id, message, now)
}

func (r ctxRepo) SetProviderCallID(ctx context.Context, id, providerCallID string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MemoryRepo.SetProviderCallID(ctx, id, providerCallID, now)
}

// cancellingPlatform cancels the scan while the call is being placed.
type cancellingPlatform struct {
	*fakePlatform
	cancel context.CancelFunc
	err    error
	ctxErr error
}

func (p *cancellingPlatform) PlaceCall(ctx context.Context, req voice.PlaceCallRequest) (string, error) {
	p.cancel()
	p.ctxErr = ctx.Err()
	if p.err != nil {
		return "", p.err
	}
	return p.fakePlatform.PlaceCall(ctx, req)
}

func runWithCancelDuringPlace(t *testing.T, placeErr error) (ScheduledCall, *cancellingPlatform) {
	t.Helper()
	mem := NewMemoryRepo()
	seedCall(t, mem, "c1", "+16502530000", testNow.Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &cancellingPlatform{fakePlatform: newFakePlatform(), cancel: cancel, err: placeErr}

	d := NewDispatcher(ctxRepo{mem}, nil, p, nil, nil, DispatcherConfig{}, nil)
	d.clock = fixedClock
	if _, err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, _ := mem.Get(context.Background(), "c1")
	return got, p
}

func TestDispatcher_ScanCancelDuringPlaceStillStoresProviderID(t *testing.T) {
	got, p := runWithCancelDuringPlace(t, nil)
	if p.ctxErr != nil {
		t.Fatalf("expected placement to outlive the scan, got %v", p.ctxErr)
	}
	if got.Status != CallStatusInProgress || got.ProviderCallID == "" {
		t.Fatalf("expected placed call with provider id, got %+v", got)
	}
}

func TestDispatcher_ScanCancelDuringFailedPlaceMarksFailed(t *testing.T) {
	got, _ := runWithCancelDuringPlace(t, errors.New("connection reset"))
	if got.Status != CallStatusFailed || got.ErrorMessage != "connection reset" {
		t.Fatalf("expected failed call, got %+v", got)
	}
}

func TestDispatcher_CancelledScanClaimsNothing(t *testing.T) {
	repo := NewMemoryRepo()
	p := newFakePlatform()
	seedCall(t, repo, "c1", "+16502530000", testNow.Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := newTestDispatcher(repo, p, nil, audit.NewMemoryRepo()).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Skipped != 1 || p.placedCount() != 0 {
		t.Fatalf("expected skipped item, got %+v", report)
	}
	got, _ := repo.Get(context.Background(), "c1")
	if got.Status != CallStatusScheduled {
		t.Fatalf("expected call to stay due, got %s", got.Status)
	}
}

func TestDispatcher_RetiresCallsForFinishedReferences(t *testing.T) {
	repo := NewMemoryRepo()
	p := newFakePlatform()
	dir := newFakeDirectory()
	ref := dir.contacts["ref-1"]
	ref.Status = checks.ContactStatusCompleted
	dir.contacts["ref-1"] = ref
	dir.checks["chk-2"] = checks.ReferenceCheck{ID: "chk-2", Status: checks.CheckStatusCompleted}

	ctx := context.Background()
	for _, c := range []ScheduledCall{
		{ID: "contact-done", CheckID: "chk-1", ContactID: "ref-1", PhoneNumber: "+16502530000", AssistantID: "asst-a"},
		{ID: "check-done", CheckID: "chk-2", PhoneNumber: "+16502530001", AssistantID: "asst-b"},
		{ID: "open", CheckID: "chk-1", PhoneNumber: "+16502530002", AssistantID: "asst-c"},
	} {
		c.ScheduledTime = testNow.Add(-time.Minute)
		c.Status = CallStatusScheduled
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}
	auditRepo := audit.NewMemoryRepo()
	d := NewDispatcher(repo, dir, p, nil, audit.NewService(auditRepo, nil), DispatcherConfig{}, nil)
	d.clock = fixedClock

	report, err := d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Dispatched != 1 || report.Skipped != 2 || p.placedCount() != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	for id, msg := range map[string]string{
		"contact-done": "reference already completed",
		"check-done":   "reference check already completed",
	} {
		got, _ := repo.Get(ctx, id)
		if got.Status != CallStatusFailed || got.ErrorMessage != msg {
			t.Fatalf("%s: expected retired call, got %+v", id, got)
		}
	}
	if len(dir.outcomes) != 1 || dir.outcomes[0].contactID != "ref-1" {
		t.Fatalf("expected completion recheck for ref-1, got %+v", dir.outcomes)
	}
	if len(auditRepo.ByType(audit.EventCallDispatchFailed)) != 2 {
		t.Fatalf("expected two retirement audits")
	}
}
