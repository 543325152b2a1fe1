package checks

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository for tests and local development.
type MemoryRepo struct {
	mu        sync.Mutex
	checks    map[string]ReferenceCheck
	contacts  map[string]ReferenceContact
	responses map[string][]ReferenceResponse
	order     []string

	// Calls, when set, holds completion back while a check has open calls.
	Calls OpenCalls
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		checks:    map[string]ReferenceCheck{},
		contacts:  map[string]ReferenceContact{},
		responses: map[string][]ReferenceResponse{},
	}
}

func (r *MemoryRepo) CreateCheck(ctx context.Context, c ReferenceCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checks[c.ID]; ok {
		return ErrConflict
	}
	r.checks[c.ID] = c
	return nil
}

func (r *MemoryRepo) GetCheck(ctx context.Context, id string) (ReferenceCheck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.checks[id]
	if !ok {
		return ReferenceCheck{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) AdvanceCheckStatus(ctx context.Context, id string, from []CheckStatus, to CheckStatus, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.checks[id]
	if !ok || !containsStatus(from, c.Status) {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = now
	r.checks[id] = c
	return true, nil
}

func (r *MemoryRepo) CompleteCheckIfDone(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.checks[id]
	if !ok || c.Status == CheckStatusCompleted {
		return false, nil
	}
	n := 0
	for _, ct := range r.contacts {
		if ct.CheckID != id {
			continue
		}
		n++
		if !ct.Status.IsTerminal() {
			return false, nil
		}
	}
	if n == 0 {
		return false, nil
	}
	if r.Calls != nil {
		open, err := r.Calls.HasOpenCalls(ctx, id)
		if err != nil {
			return false, err
		}
		if open {
			return false, nil
		}
	}
	c.Status = CheckStatusCompleted
	c.CompletedAt = &now
	c.UpdatedAt = now
	r.checks[id] = c
	return true, nil
}

func (r *MemoryRepo) CreateContacts(ctx context.Context, cs []ReferenceContact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cs {
		if _, ok := r.contacts[c.ID]; !ok {
			r.order = append(r.order, c.ID)
		}
		r.contacts[c.ID] = c
	}
	return nil
}

func (r *MemoryRepo) GetContact(ctx context.Context, id string) (ReferenceContact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return ReferenceContact{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListContacts(ctx context.Context, checkID string) ([]ReferenceContact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReferenceContact, 0)
	for _, id := range r.order {
		if c := r.contacts[id]; c.CheckID == checkID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdateContactStatus(ctx context.Context, id string, from []ContactStatus, to ContactStatus, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if c.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = now
	r.contacts[id] = c
	return true, nil
}

func (r *MemoryRepo) SaveResponses(ctx context.Context, rs []ReferenceResponse) error {
	if len(rs) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	contactID := rs[0].ContactID
	if len(r.responses[contactID]) > 0 {
		return ErrConflict
	}
	r.responses[contactID] = append([]ReferenceResponse(nil), rs...)
	return nil
}

func (r *MemoryRepo) ListResponses(ctx context.Context, checkID string) ([]ReferenceResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReferenceResponse, 0)
	for _, id := range r.order {
		if r.contacts[id].CheckID != checkID {
			continue
		}
		out = append(out, r.responses[id]...)
	}
	return out, nil
}

func (r *MemoryRepo) DeleteCheck(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.CheckID == id {
			return nil
		}
	}
	delete(r.checks, id)
	return nil
}

func containsStatus(list []CheckStatus, s CheckStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
