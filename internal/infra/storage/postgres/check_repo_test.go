package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrichops/overseer/internal/core/domain"
)

var checkRowColumns = []string{
	"id", "agent", "run_id", "check_status", "action_taken", "details",
	"retry_run_id", "is_retry_check", "retry_check_at", "checked_at",
}

func TestCheckRepoCreate(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewCheckRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO check_records")).
		WithArgs(
			"check-1", "company_enrich", "run-1", "failed", "retry",
			sqlmock.AnyArg(), "run-2", false, nil, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.CheckRecord{
		ID:          "check-1",
		Agent:       domain.AgentCompanyEnrich,
		RunID:       "run-1",
		CheckStatus: domain.CheckFailed,
		ActionTaken: domain.ActionRetry,
		RetryRunID:  "run-2",
		CheckedAt:   time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckRepoLatestForAgent(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewCheckRepo(db)

	checked := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(checkRowColumns).AddRow(
		"check-1", "email_verify", "run-1", "failed", "alert_only",
		[]byte(`{"dominant_category":"auth","items_processed":0,"successful_items":0,"expected_minimum":20}`),
		nil, true, nil, checked,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM check_records")).
		WithArgs("email_verify").
		WillReturnRows(rows)

	check, err := repo.LatestForAgent(context.Background(), domain.AgentEmailVerify)
	require.NoError(t, err)
	require.NotNil(t, check)
	assert.Equal(t, domain.CheckFailed, check.CheckStatus)
	assert.Equal(t, domain.ActionAlertOnly, check.ActionTaken)
	assert.Equal(t, domain.CategoryAuth, check.Details.DominantCategory)
	assert.True(t, check.IsRetryCheck)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckRepoLatestForAgentEmpty(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewCheckRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM check_records")).
		WithArgs("crm_sync").
		WillReturnRows(sqlmock.NewRows(checkRowColumns))

	check, err := repo.LatestForAgent(context.Background(), domain.AgentCRMSync)
	require.NoError(t, err)
	assert.Nil(t, check)
}

func TestCheckRepoStampRetryCheck(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewCheckRepo(db)

	at := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE check_records SET retry_check_at = $2 WHERE id = $1")).
		WithArgs("check-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.StampRetryCheck(context.Background(), "check-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
