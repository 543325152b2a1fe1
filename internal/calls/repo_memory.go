package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository for tests and local development.
// It applies the same conditional-update rules as PostgresRepo.
type MemoryRepo struct {
	mu          sync.Mutex
	calls       map[string]ScheduledCall
	transcripts map[string]CallTranscript
	writes      int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: map[string]ScheduledCall{}, transcripts: map[string]CallTranscript{}}
}

func (r *MemoryRepo) Create(ctx context.Context, c ScheduledCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[c.ID]; ok {
		return ErrConflict
	}
	r.calls[c.ID] = c
	r.writes++
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return ScheduledCall{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) FindByProviderCallID(ctx context.Context, providerCallID string) (ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if providerCallID != "" && c.ProviderCallID == providerCallID {
			return c, nil
		}
	}
	return ScheduledCall{}, ErrNotFound
}

func (r *MemoryRepo) FindByAssistantID(ctx context.Context, assistantID string) (ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if assistantID != "" && c.AssistantID == assistantID {
			return c, nil
		}
	}
	return ScheduledCall{}, ErrNotFound
}

func (r *MemoryRepo) HasOpenCalls(ctx context.Context, checkID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.CheckID == checkID && !c.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepo) ListDue(ctx context.Context, until time.Time, limit int) ([]ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScheduledCall, 0)
	for _, c := range r.calls {
		if c.Status == CallStatusScheduled && !c.ScheduledTime.After(until) {
			out = append(out, c)
		}
	}
	sortByScheduledTime(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListByCheck(ctx context.Context, checkID string) ([]ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScheduledCall, 0)
	for _, c := range r.calls {
		if c.CheckID == checkID {
			out = append(out, c)
		}
	}
	sortByScheduledTime(out)
	return out, nil
}

func (r *MemoryRepo) update(id string, cond func(ScheduledCall) bool, apply func(*ScheduledCall)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok || !cond(c) {
		return false
	}
	apply(&c)
	r.calls[id] = c
	r.writes++
	return true
}

func (r *MemoryRepo) ClaimForDispatch(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.update(id,
		func(c ScheduledCall) bool { return c.Status == CallStatusScheduled },
		func(c *ScheduledCall) {
			c.Status = CallStatusInProgress
			c.DispatchedAt = &now
			c.UpdatedAt = now
		}), nil
}

func (r *MemoryRepo) SetProviderCallID(ctx context.Context, id, providerCallID string, now time.Time) error {
	r.update(id,
		func(c ScheduledCall) bool { return c.ProviderCallID == "" },
		func(c *ScheduledCall) {
			c.ProviderCallID = providerCallID
			c.UpdatedAt = now
		})
	return nil
}

func (r *MemoryRepo) MarkInProgress(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.update(id,
		func(c ScheduledCall) bool { return c.Status == CallStatusScheduled },
		func(c *ScheduledCall) {
			c.Status = CallStatusInProgress
			c.UpdatedAt = now
		}), nil
}

func (r *MemoryRepo) Complete(ctx context.Context, id string, u Completion) (bool, error) {
	return r.update(id,
		func(c ScheduledCall) bool { return !c.Status.IsTerminal() },
		func(c *ScheduledCall) {
			completedAt := u.CompletedAt
			c.Status = u.Status
			c.DurationSeconds = u.DurationSeconds
			c.RecordingURL = u.RecordingURL
			c.Transcript = u.Transcript
			c.FormattedTranscript = u.FormattedTranscript
			c.ErrorMessage = u.ErrorMessage
			c.CompletedAt = &completedAt
			c.UpdatedAt = completedAt
		}), nil
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, id, message string, now time.Time) (bool, error) {
	return r.update(id,
		func(c ScheduledCall) bool { return !c.Status.IsTerminal() },
		func(c *ScheduledCall) {
			c.Status = CallStatusFailed
			c.ErrorMessage = message
			c.CompletedAt = &now
			c.UpdatedAt = now
		}), nil
}

func (r *MemoryRepo) MarkNotified(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.update(id,
		func(c ScheduledCall) bool { return c.NotifiedAt == nil },
		func(c *ScheduledCall) {
			c.NotifiedAt = &now
			c.UpdatedAt = now
		}), nil
}

func (r *MemoryRepo) SaveTranscript(ctx context.Context, t CallTranscript) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transcripts[t.CallID]; ok {
		return false, nil
	}
	r.transcripts[t.CallID] = t
	r.writes++
	return true, nil
}

func (r *MemoryRepo) GetTranscript(ctx context.Context, callID string) (CallTranscript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transcripts[callID]
	if !ok {
		return CallTranscript{}, ErrNotFound
	}
	return t, nil
}

// WriteCount returns the number of successful mutations so far.
func (r *MemoryRepo) WriteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func sortByScheduledTime(cs []ScheduledCall) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].ScheduledTime.Equal(cs[j].ScheduledTime) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].ScheduledTime.Before(cs[j].ScheduledTime)
	})
}
