package storage

import (
	"context"
	"errors"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
)

var (
	// ErrRunNotFound is returned when a run doesn't exist.
	ErrRunNotFound = errors.New("run not found")
)

// RunUpdate carries the optional fields of a status update. Nil fields are
// left untouched.
type RunUpdate struct {
	CompletedAt *time.Time
	DurationMs  *int64
	AppendError *domain.ErrorRecord
}

// RunRepository is the run ledger. Runs are append-only; the only mutations
// are status transitions and counter updates on an existing run.
type RunRepository interface {
	// Create appends a new run to the ledger.
	Create(ctx context.Context, run *domain.Run) error

	// GetByID retrieves a run by id.
	GetByID(ctx context.Context, id string) (*domain.Run, error)

	// Latest returns the most recently created run for an agent within the
	// lookback window, or nil when none exists.
	Latest(ctx context.Context, agent domain.Agent, window time.Duration) (*domain.Run, error)

	// UpdateStatus transitions a run's status and applies optional fields.
	UpdateStatus(ctx context.Context, id string, status domain.RunStatus, update RunUpdate) error

	// ListSince returns runs created after the cutoff, newest first.
	ListSince(ctx context.Context, agent domain.Agent, since time.Time) ([]*domain.Run, error)

	// CountStaleRunning counts runs still marked running or pending whose
	// start time (schedule time when they never started) is older than the
	// timeout budget.
	CountStaleRunning(ctx context.Context, budget time.Duration) (int, error)

	// CountRecentFailures counts failed or timed-out runs created after the
	// cutoff, across all agents.
	CountRecentFailures(ctx context.Context, since time.Time) (int, error)
}

// CheckRepository persists supervisor check records.
type CheckRepository interface {
	// Create appends a check record.
	Create(ctx context.Context, check *domain.CheckRecord) error

	// LatestForAgent returns the most recent check for an agent, or nil.
	LatestForAgent(ctx context.Context, agent domain.Agent) (*domain.CheckRecord, error)

	// StampRetryCheck marks a check as needing re-examination at the given time.
	StampRetryCheck(ctx context.Context, id string, at time.Time) error
}
