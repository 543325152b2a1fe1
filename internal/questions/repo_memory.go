package questions

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory repository for tests and local development.
type MemoryRepo struct {
	mu      sync.Mutex
	byCheck map[string][]Question
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{byCheck: map[string][]Question{}} }

func (r *MemoryRepo) InsertBatch(ctx context.Context, qs []Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range qs {
		r.byCheck[q.CheckID] = append(r.byCheck[q.CheckID], q)
	}
	return nil
}

func (r *MemoryRepo) ListByCheck(ctx context.Context, checkID string) ([]Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Question, len(r.byCheck[checkID]))
	copy(out, r.byCheck[checkID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}
