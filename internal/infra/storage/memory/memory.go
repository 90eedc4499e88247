package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/infra/storage"
)

// MemoryStorage keeps the run ledger and check records in process memory.
// Used for tests and for running without a database.
type MemoryStorage struct {
	runs   map[string]*domain.Run
	order  []string // creation order of run IDs
	checks []*domain.CheckRecord
	mu     sync.RWMutex
	now    func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		runs: make(map[string]*domain.Run),
		now:  time.Now,
	}
}

// SetClock overrides the clock, for tests.
func (s *MemoryStorage) SetClock(now func() time.Time) {
	s.now = now
}

// -----------------------------------------------------------------------------
// Run Repository
// -----------------------------------------------------------------------------

type RunRepo struct {
	store *MemoryStorage
}

func NewRunRepo(store *MemoryStorage) *RunRepo {
	return &RunRepo{store: store}
}

func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *run
	r.store.runs[run.ID] = &cp
	r.store.order = append(r.store.order, run.ID)
	return nil
}

func (r *RunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	run, ok := r.store.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *RunRepo) Latest(
	ctx context.Context,
	agent domain.Agent,
	window time.Duration,
) (*domain.Run, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cutoff := r.store.now().Add(-window)
	// Walk creation order backwards; newest first.
	for i := len(r.store.order) - 1; i >= 0; i-- {
		run := r.store.runs[r.store.order[i]]
		if run.Agent != agent {
			continue
		}
		if run.ScheduledAt.Before(cutoff) {
			return nil, nil
		}
		cp := *run
		return &cp, nil
	}
	return nil, nil
}

func (r *RunRepo) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.RunStatus,
	update storage.RunUpdate,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	run, ok := r.store.runs[id]
	if !ok {
		return storage.ErrRunNotFound
	}
	run.Status = status
	if update.CompletedAt != nil {
		run.CompletedAt = update.CompletedAt
	}
	if update.DurationMs != nil {
		run.DurationMs = *update.DurationMs
	}
	if update.AppendError != nil {
		run.Errors = append(run.Errors, *update.AppendError)
	}
	return nil
}

func (r *RunRepo) ListSince(
	ctx context.Context,
	agent domain.Agent,
	since time.Time,
) ([]*domain.Run, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Run
	for i := len(r.store.order) - 1; i >= 0; i-- {
		run := r.store.runs[r.store.order[i]]
		if run.Agent != agent || run.ScheduledAt.Before(since) {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	return out, nil
}

func (r *RunRepo) CountStaleRunning(ctx context.Context, budget time.Duration) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cutoff := r.store.now().Add(-budget)
	count := 0
	for _, run := range r.store.runs {
		if run.Status != domain.RunStatusRunning && run.Status != domain.RunStatusPending {
			continue
		}
		start := run.ScheduledAt
		if run.StartedAt != nil {
			start = *run.StartedAt
		}
		if !start.IsZero() && start.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (r *RunRepo) CountRecentFailures(ctx context.Context, since time.Time) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, run := range r.store.runs {
		if run.ScheduledAt.Before(since) {
			continue
		}
		if run.Status == domain.RunStatusFailed || run.Status == domain.RunStatusTimeout {
			count++
		}
	}
	return count, nil
}

// -----------------------------------------------------------------------------
// Check Repository
// -----------------------------------------------------------------------------

type CheckRepo struct {
	store *MemoryStorage
}

func NewCheckRepo(store *MemoryStorage) *CheckRepo {
	return &CheckRepo{store: store}
}

func (r *CheckRepo) Create(ctx context.Context, check *domain.CheckRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *check
	r.store.checks = append(r.store.checks, &cp)
	return nil
}

func (r *CheckRepo) LatestForAgent(
	ctx context.Context,
	agent domain.Agent,
) (*domain.CheckRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for i := len(r.store.checks) - 1; i >= 0; i-- {
		if r.store.checks[i].Agent == agent {
			cp := *r.store.checks[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *CheckRepo) StampRetryCheck(ctx context.Context, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.checks {
		if c.ID == id {
			t := at
			c.RetryCheckAt = &t
			return nil
		}
	}
	return nil
}

// Checks returns all stored check records sorted by check time, for tests
// and the status CLI.
func (s *MemoryStorage) Checks() []*domain.CheckRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.CheckRecord, len(s.checks))
	for i, c := range s.checks {
		cp := *c
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckedAt.Before(out[j].CheckedAt) })
	return out
}
