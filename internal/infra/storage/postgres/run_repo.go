package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/infra/storage"
)

// RunRepo implements storage.RunRepository using PostgreSQL.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new PostgreSQL run repository.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

type runRow struct {
	ID             string          `db:"id"`
	Agent          string          `db:"agent"`
	Status         string          `db:"status"`
	TriggeredBy    string          `db:"triggered_by"`
	ParentRunID    sql.NullString  `db:"parent_run_id"`
	RetryAttempt   int             `db:"retry_attempt"`
	ScheduledAt    time.Time       `db:"scheduled_at"`
	StartedAt      *time.Time      `db:"started_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
	DurationMs     int64           `db:"duration_ms"`
	ItemsProcessed int             `db:"items_processed"`
	ItemsUpdated   int             `db:"items_updated"`
	ItemsCreated   int             `db:"items_created"`
	ItemsFailed    int             `db:"items_failed"`
	ItemsSkipped   int             `db:"items_skipped"`
	Errors         json.RawMessage `db:"errors"`
	TotalCost      *float64        `db:"total_cost"`
	Adjustments    json.RawMessage `db:"adjustments"`
}

const runColumns = `id, agent, status, triggered_by, parent_run_id, retry_attempt,
		scheduled_at, started_at, completed_at, duration_ms,
		items_processed, items_updated, items_created, items_failed, items_skipped,
		errors, total_cost, adjustments`

func (row *runRow) toDomain() (*domain.Run, error) {
	run := &domain.Run{
		ID:             row.ID,
		Agent:          domain.Agent(row.Agent),
		Status:         domain.RunStatus(row.Status),
		TriggeredBy:    domain.TriggerSource(row.TriggeredBy),
		RetryAttempt:   row.RetryAttempt,
		ScheduledAt:    row.ScheduledAt,
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
		DurationMs:     row.DurationMs,
		ItemsProcessed: row.ItemsProcessed,
		ItemsUpdated:   row.ItemsUpdated,
		ItemsCreated:   row.ItemsCreated,
		ItemsFailed:    row.ItemsFailed,
		ItemsSkipped:   row.ItemsSkipped,
		TotalCost:      row.TotalCost,
	}
	if row.ParentRunID.Valid {
		run.ParentRunID = row.ParentRunID.String
	}
	if len(row.Errors) > 0 {
		if err := json.Unmarshal(row.Errors, &run.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode run errors: %w", err)
		}
	}
	if len(row.Adjustments) > 0 {
		if err := json.Unmarshal(row.Adjustments, &run.Adjustments); err != nil {
			return nil, fmt.Errorf("failed to decode run adjustments: %w", err)
		}
	}
	return run, nil
}

// Create appends a new run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	errsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}
	if run.Errors == nil {
		errsJSON = []byte("[]")
	}
	adjJSON, err := json.Marshal(run.Adjustments)
	if err != nil {
		return fmt.Errorf("failed to encode run adjustments: %w", err)
	}

	var parent any
	if run.ParentRunID != "" {
		parent = run.ParentRunID
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.db.ExecContext(ctx, query,
		run.ID, string(run.Agent), string(run.Status), string(run.TriggeredBy),
		parent, run.RetryAttempt,
		run.ScheduledAt, run.StartedAt, run.CompletedAt, run.DurationMs,
		run.ItemsProcessed, run.ItemsUpdated, run.ItemsCreated, run.ItemsFailed, run.ItemsSkipped,
		errsJSON, run.TotalCost, adjJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by id.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	var row runRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return row.toDomain()
}

// Latest returns the newest run for the agent within the lookback window.
func (r *RunRepo) Latest(
	ctx context.Context,
	agent domain.Agent,
	window time.Duration,
) (*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE agent = $1 AND scheduled_at >= $2
		ORDER BY scheduled_at DESC
		LIMIT 1
	`

	var row runRow
	err := r.db.GetContext(ctx, &row, query, string(agent), time.Now().Add(-window))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No run within the window
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return row.toDomain()
}

// UpdateStatus transitions a run's status and applies optional fields.
func (r *RunRepo) UpdateStatus(
	ctx context.Context,
	id string,
	status domain.RunStatus,
	update storage.RunUpdate,
) error {
	query := `UPDATE runs SET status = $2`
	args := []any{id, string(status)}

	if update.CompletedAt != nil {
		args = append(args, *update.CompletedAt)
		query += fmt.Sprintf(", completed_at = $%d", len(args))
	}
	if update.DurationMs != nil {
		args = append(args, *update.DurationMs)
		query += fmt.Sprintf(", duration_ms = $%d", len(args))
	}
	if update.AppendError != nil {
		errJSON, err := json.Marshal(update.AppendError)
		if err != nil {
			return fmt.Errorf("failed to encode error record: %w", err)
		}
		args = append(args, errJSON)
		query += fmt.Sprintf(", errors = errors || $%d::jsonb", len(args))
	}
	query += ` WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrRunNotFound
	}
	return nil
}

// ListSince returns runs created after the cutoff, newest first.
func (r *RunRepo) ListSince(
	ctx context.Context,
	agent domain.Agent,
	since time.Time,
) ([]*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE agent = $1 AND scheduled_at >= $2
		ORDER BY scheduled_at DESC
	`

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, string(agent), since); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*domain.Run, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// CountStaleRunning counts runs still in flight past the timeout budget. Runs
// that never reported a start are measured from their schedule time.
func (r *RunRepo) CountStaleRunning(ctx context.Context, budget time.Duration) (int, error) {
	query := `
		SELECT COUNT(*) FROM runs
		WHERE status IN ('running', 'pending')
		  AND COALESCE(started_at, scheduled_at) < $1
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, time.Now().Add(-budget)); err != nil {
		return 0, fmt.Errorf("failed to count stale runs: %w", err)
	}
	return count, nil
}

// CountRecentFailures counts failed or timed-out runs created after the cutoff.
func (r *RunRepo) CountRecentFailures(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM runs
		WHERE status IN ('failed', 'timeout') AND scheduled_at >= $1
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, since); err != nil {
		return 0, fmt.Errorf("failed to count recent failures: %w", err)
	}
	return count, nil
}
