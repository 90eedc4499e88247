package domain

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusTimeout   RunStatus = "timeout"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed, RunStatusTimeout, RunStatusCancelled:
		return true
	}
	return false
}

// TriggerSource identifies who created a run.
type TriggerSource string

const (
	TriggeredByScheduler  TriggerSource = "scheduler"
	TriggeredBySupervisor TriggerSource = "supervisor"
	TriggeredByManual     TriggerSource = "manual"
)

// Adjustments are execution-parameter overrides handed to a retried agent.
type Adjustments struct {
	ReduceBatchSize   bool    `json:"reduce_batch_size,omitempty"`
	TimeoutMultiplier float64 `json:"timeout_multiplier,omitempty"`
	UseBackupService  bool    `json:"use_backup_service,omitempty"`
}

// IsZero reports whether no adjustment is set.
func (a Adjustments) IsZero() bool {
	return !a.ReduceBatchSize && a.TimeoutMultiplier == 0 && !a.UseBackupService
}

// Run is one execution attempt of an agent. Runs form an append-only ledger;
// a retry points at its parent via ParentRunID and carries RetryAttempt one
// greater than the parent's.
type Run struct {
	ID             string        `json:"id"`
	Agent          Agent         `json:"agent"`
	Status         RunStatus     `json:"status"`
	TriggeredBy    TriggerSource `json:"triggered_by"`
	ParentRunID    string        `json:"parent_run_id,omitempty"`
	RetryAttempt   int           `json:"retry_attempt"`
	ScheduledAt    time.Time     `json:"scheduled_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	DurationMs     int64         `json:"duration_ms"`
	ItemsProcessed int           `json:"items_processed"`
	ItemsUpdated   int           `json:"items_updated"`
	ItemsCreated   int           `json:"items_created"`
	ItemsFailed    int           `json:"items_failed"`
	ItemsSkipped   int           `json:"items_skipped"`
	Errors         []ErrorRecord `json:"errors,omitempty"`
	TotalCost      *float64      `json:"total_cost,omitempty"`
	Adjustments    Adjustments   `json:"adjustments,omitempty"`
}

// SuccessfulItems is the yield a run produced, measured as updated+created.
func (r *Run) SuccessfulItems() int {
	return r.ItemsUpdated + r.ItemsCreated
}

// Elapsed returns how long the run has been going, or took. A run that never
// reported a start is measured from its schedule time, so a run stuck in
// pending still accrues elapsed time.
func (r *Run) Elapsed(now time.Time) time.Duration {
	start := r.ScheduledAt
	if r.StartedAt != nil {
		start = *r.StartedAt
	}
	if start.IsZero() {
		return 0
	}
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(start)
	}
	return now.Sub(start)
}
