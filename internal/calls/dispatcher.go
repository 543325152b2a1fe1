package calls

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"voiceref/internal/audit"
	"voiceref/internal/checks"
	"voiceref/internal/telemetry"
	"voiceref/internal/voice"
	"voiceref/pkg/utils"
)

// Locker serializes dispatcher scans across processes. utils.RedisLocker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (utils.UnlockFunc, bool, error)
}

type DispatcherConfig struct {
	// Lookahead widens the due window past now. Zero dispatches only calls already due.
	Lookahead   time.Duration
	BatchSize   int
	Concurrency int

	LockKey string
	LockTTL time.Duration

	// CallTimeout bounds placing one claimed call and the writes that follow it.
	CallTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	out := c
	if out.Lookahead < 0 {
		out.Lookahead = 0
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 100
	}
	if out.Concurrency <= 0 {
		out.Concurrency = 8
	}
	if out.LockKey == "" {
		out.LockKey = "voiceref:dispatch:lock"
	}
	if out.LockTTL <= 0 {
		out.LockTTL = 2 * time.Minute
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = 30 * time.Second
	}
	return out
}

const (
	DispatchDispatched = "dispatched"
	DispatchFailed     = "failed"
	DispatchSkipped    = "skipped"
)

// DispatchResult is the outcome for one due call.
type DispatchResult struct {
	CallID         string `json:"call_id"`
	Result         string `json:"result"`
	ProviderCallID string `json:"provider_call_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

type DispatchReport struct {
	Scanned    int              `json:"scanned"`
	Dispatched int              `json:"dispatched"`
	Failed     int              `json:"failed"`
	Skipped    int              `json:"skipped"`
	Locked     bool             `json:"locked,omitempty"`
	Results    []DispatchResult `json:"results"`
}

// Dispatcher places due calls with the voice platform.
type Dispatcher struct {
	repo     Repository
	checks   CheckDirectory
	platform voice.Platform
	locker   Locker
	audit    *audit.Service
	cfg      DispatcherConfig
	log      *slog.Logger
	clock    func() time.Time
}

// NewDispatcher builds a dispatcher. locker may be nil; scans then rely only on the
// conditional claim to avoid double dispatch. dir may be nil, in which case calls are
// placed without checking whether their reference is already finished.
func NewDispatcher(repo Repository, dir CheckDirectory, platform voice.Platform, locker Locker, auditSvc *audit.Service, cfg DispatcherConfig, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		repo:     repo,
		checks:   dir,
		platform: platform,
		locker:   locker,
		audit:    auditSvc,
		cfg:      cfg.withDefaults(),
		log:      log.With("component", "dispatcher"),
		clock:    time.Now,
	}
}

// RunOnce scans due calls and dispatches each one independently. A failing item is
// recorded in the report and never fails the scan; only the scan query itself can.
func (d *Dispatcher) RunOnce(ctx context.Context) (DispatchReport, error) {
	report := DispatchReport{Results: make([]DispatchResult, 0)}

	if d.locker != nil {
		unlock, ok, err := d.locker.TryLock(ctx, d.cfg.LockKey, d.cfg.LockTTL)
		if err != nil {
			return report, fmt.Errorf("acquire dispatch lock: %w", err)
		}
		if !ok {
			report.Locked = true
			d.log.Info("dispatch scan skipped, another scan holds the lock")
			return report, nil
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				d.log.Warn("dispatch lock release failed", "err", err)
			}
		}()
	}

	now := d.clock().UTC()
	due, err := d.repo.ListDue(ctx, now.Add(d.cfg.Lookahead), d.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list due calls: %w", err)
	}
	telemetry.DispatchScans.Inc()
	report.Scanned = len(due)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(d.cfg.Concurrency)
	for _, call := range due {
		g.Go(func() error {
			res := d.dispatchOne(ctx, call)
			mu.Lock()
			report.Results = append(report.Results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range report.Results {
		switch r.Result {
		case DispatchDispatched:
			report.Dispatched++
		case DispatchFailed:
			report.Failed++
		default:
			report.Skipped++
		}
		telemetry.DispatchResults.WithLabelValues(r.Result).Inc()
	}
	if report.Scanned > 0 {
		d.log.Info("dispatch scan finished", "scanned", report.Scanned, "dispatched", report.Dispatched, "failed", report.Failed, "skipped", report.Skipped)
	}
	return report, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call ScheduledCall) (res DispatchResult) {
	res = DispatchResult{CallID: call.ID}
	log := d.log.With("call_id", call.ID, "check_id", call.CheckID)

	claimed := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panic", "panic", r)
			res.Result = DispatchFailed
			res.Error = fmt.Sprintf("panic: %v", r)
			if claimed {
				fctx, cancel := d.detached(ctx)
				defer cancel()
				d.fail(fctx, call, res.Error)
			}
		}
	}()

	// Nothing is claimed once the scan is cancelled; the row stays due for the next scan.
	if err := ctx.Err(); err != nil {
		res.Result = DispatchSkipped
		res.Error = err.Error()
		return res
	}

	if reason := d.closedReason(ctx, call); reason != "" {
		res.Result = DispatchSkipped
		res.Error = reason
		d.close(ctx, call, reason)
		return res
	}

	var err error
	claimed, err = d.repo.ClaimForDispatch(ctx, call.ID, d.clock().UTC())
	if err != nil {
		log.Error("dispatch claim failed", "err", err)
		res.Result = DispatchSkipped
		res.Error = err.Error()
		return res
	}
	if !claimed {
		res.Result = DispatchSkipped
		return res
	}

	// A claimed row must end up placed or failed, so the rest runs detached from the scan.
	work, cancel := d.detached(ctx)
	defer cancel()

	if call.AssistantID == "" {
		res.Result = DispatchFailed
		res.Error = "call has no assistant"
		d.fail(work, call, res.Error)
		return res
	}

	providerCallID, err := d.platform.PlaceCall(work, voice.PlaceCallRequest{
		AssistantID:  call.AssistantID,
		PhoneNumber:  call.PhoneNumber,
		CustomerName: call.ContactName,
	})
	if err != nil {
		log.Warn("place call failed", "err", err)
		res.Result = DispatchFailed
		res.Error = err.Error()
		d.fail(work, call, res.Error)
		return res
	}

	if err := d.repo.SetProviderCallID(work, call.ID, providerCallID, d.clock().UTC()); err != nil {
		// Events for the call still match through its assistant.
		log.Error("store provider call id failed", "err", err, "provider_call_id", providerCallID)
	}
	res.Result = DispatchDispatched
	res.ProviderCallID = providerCallID
	d.audit.Record(work, audit.EventCallDispatched, call.CheckID, call.ID, "provider call "+providerCallID)
	return res
}

func (d *Dispatcher) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.cfg.CallTimeout)
}

// closedReason reports why a due call must not ring: its reference already finished, or
// its check is complete. Lookup failures do not block dispatch.
func (d *Dispatcher) closedReason(ctx context.Context, call ScheduledCall) string {
	if d.checks == nil {
		return ""
	}
	if call.ContactID != "" {
		contact, err := d.checks.GetContact(ctx, call.ContactID)
		if err != nil {
			d.log.Warn("contact lookup before dispatch failed", "err", err, "call_id", call.ID)
		} else if contact.Status.IsTerminal() {
			return "reference already " + string(contact.Status)
		}
	}
	check, err := d.checks.GetCheckRecord(ctx, call.CheckID)
	if err != nil {
		d.log.Warn("check lookup before dispatch failed", "err", err, "call_id", call.ID)
		return ""
	}
	if check.Status == checks.CheckStatusCompleted {
		return "reference check already completed"
	}
	return ""
}

// close retires a call that will never be placed and lets the check complete without it.
func (d *Dispatcher) close(ctx context.Context, call ScheduledCall, reason string) {
	won, err := d.repo.MarkFailed(ctx, call.ID, reason, d.clock().UTC())
	if err != nil {
		d.log.Error("retire call failed", "err", err, "call_id", call.ID)
		return
	}
	if !won {
		return
	}
	d.audit.Record(ctx, audit.EventCallDispatchFailed, call.CheckID, call.ID, reason)
	d.log.Info("call retired before dispatch", "call_id", call.ID, "reason", reason)
	if call.ContactID != "" {
		if err := d.checks.RecordContactOutcome(ctx, call.ContactID, false); err != nil {
			d.log.Error("contact outcome update failed", "err", err, "contact_id", call.ContactID)
		}
	}
}

func (d *Dispatcher) fail(ctx context.Context, call ScheduledCall, msg string) {
	if _, err := d.repo.MarkFailed(ctx, call.ID, msg, d.clock().UTC()); err != nil {
		d.log.Error("mark call failed", "err", err, "call_id", call.ID)
	}
	d.audit.Record(ctx, audit.EventCallDispatchFailed, call.CheckID, call.ID, msg)
}
