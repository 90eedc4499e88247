package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
)

// CheckRepo implements storage.CheckRepository using PostgreSQL.
type CheckRepo struct {
	db *DB
}

// NewCheckRepo creates a new PostgreSQL check repository.
func NewCheckRepo(db *DB) *CheckRepo {
	return &CheckRepo{db: db}
}

type checkRow struct {
	ID           string          `db:"id"`
	Agent        string          `db:"agent"`
	RunID        sql.NullString  `db:"run_id"`
	CheckStatus  string          `db:"check_status"`
	ActionTaken  string          `db:"action_taken"`
	Details      json.RawMessage `db:"details"`
	RetryRunID   sql.NullString  `db:"retry_run_id"`
	IsRetryCheck bool            `db:"is_retry_check"`
	RetryCheckAt *time.Time      `db:"retry_check_at"`
	CheckedAt    time.Time       `db:"checked_at"`
}

// Create appends a check record.
func (r *CheckRepo) Create(ctx context.Context, check *domain.CheckRecord) error {
	detailsJSON, err := json.Marshal(check.Details)
	if err != nil {
		return fmt.Errorf("failed to encode check details: %w", err)
	}

	var runID, retryRunID any
	if check.RunID != "" {
		runID = check.RunID
	}
	if check.RetryRunID != "" {
		retryRunID = check.RetryRunID
	}

	query := `
		INSERT INTO check_records
			(id, agent, run_id, check_status, action_taken, details,
			 retry_run_id, is_retry_check, retry_check_at, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		check.ID, string(check.Agent), runID,
		string(check.CheckStatus), string(check.ActionTaken), detailsJSON,
		retryRunID, check.IsRetryCheck, check.RetryCheckAt, check.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create check record: %w", err)
	}
	return nil
}

// LatestForAgent returns the newest check record for an agent.
func (r *CheckRepo) LatestForAgent(
	ctx context.Context,
	agent domain.Agent,
) (*domain.CheckRecord, error) {
	query := `
		SELECT id, agent, run_id, check_status, action_taken, details,
		       retry_run_id, is_retry_check, retry_check_at, checked_at
		FROM check_records
		WHERE agent = $1
		ORDER BY checked_at DESC
		LIMIT 1
	`

	var row checkRow
	err := r.db.GetContext(ctx, &row, query, string(agent))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest check: %w", err)
	}

	check := &domain.CheckRecord{
		ID:           row.ID,
		Agent:        domain.Agent(row.Agent),
		CheckStatus:  domain.CheckStatus(row.CheckStatus),
		ActionTaken:  domain.CheckAction(row.ActionTaken),
		IsRetryCheck: row.IsRetryCheck,
		RetryCheckAt: row.RetryCheckAt,
		CheckedAt:    row.CheckedAt,
	}
	if row.RunID.Valid {
		check.RunID = row.RunID.String
	}
	if row.RetryRunID.Valid {
		check.RetryRunID = row.RetryRunID.String
	}
	if len(row.Details) > 0 {
		if err := json.Unmarshal(row.Details, &check.Details); err != nil {
			return nil, fmt.Errorf("failed to decode check details: %w", err)
		}
	}
	return check, nil
}

// StampRetryCheck marks a check as needing re-examination at the given time.
func (r *CheckRepo) StampRetryCheck(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE check_records SET retry_check_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to stamp retry check: %w", err)
	}
	return nil
}
