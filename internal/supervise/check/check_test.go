package check

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/infra/storage/memory"
)

var testTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testChecker(t *testing.T) (*Checker, *memory.RunRepo) {
	t.Helper()
	store := memory.NewMemoryStorage()
	store.SetClock(func() time.Time { return testTime })
	runs := memory.NewRunRepo(store)

	c := New(runs, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetClock(func() time.Time { return testTime })
	return c, runs
}

func seedRun(t *testing.T, runs *memory.RunRepo, run *domain.Run) {
	t.Helper()
	if run.ID == "" {
		run.ID = "run-1"
	}
	if run.ScheduledAt.IsZero() {
		run.ScheduledAt = testTime.Add(-time.Hour)
	}
	require.NoError(t, runs.Create(context.Background(), run))
}

func TestCheckPassed(t *testing.T) {
	c, runs := testChecker(t)
	seedRun(t, runs, &domain.Run{
		Agent:          domain.AgentCompanyEnrich,
		Status:         domain.RunStatusCompleted,
		ItemsProcessed: 50,
		ItemsUpdated:   30,
		ItemsCreated:   5,
	})

	res, err := c.Check(context.Background(), domain.AgentCompanyEnrich)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckPassed, res.Status)
	assert.Equal(t, 35, res.Details.SuccessfulItems)
	assert.Equal(t, 10, res.Details.ExpectedMinimum)
}

func TestCheckLowOutputWarns(t *testing.T) {
	c, runs := testChecker(t)
	seedRun(t, runs, &domain.Run{
		Agent:          domain.AgentCompanyEnrich,
		Status:         domain.RunStatusCompleted,
		ItemsProcessed: 40,
		ItemsUpdated:   2, // below the floor of 10
	})

	res, err := c.Check(context.Background(), domain.AgentCompanyEnrich)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckWarning, res.Status)
	assert.Equal(t, "low output", res.Details.Note)
}

func TestCheckCompletedWithoutProcessing(t *testing.T) {
	c, runs := testChecker(t)
	seedRun(t, runs, &domain.Run{
		Agent:  domain.AgentEmailVerify,
		Status: domain.RunStatusCompleted,
	})

	res, err := c.Check(context.Background(), domain.AgentEmailVerify)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckWarning, res.Status)
	assert.Equal(t, "completed without processing anything", res.Details.Note)
}

func TestCheckZeroFloorAgentPasses(t *testing.T) {
	c, runs := testChecker(t)
	seedRun(t, runs, &domain.Run{
		Agent:  domain.AgentNewsMonitor,
		Status: domain.RunStatusCompleted,
	})

	res, err := c.Check(context.Background(), domain.AgentNewsMonitor)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckPassed, res.Status)
}

func TestCheckFailedRun(t *testing.T) {
	c, runs := testChecker(t)
	seedRun(t, runs, &domain.Run{
		Agent:  domain.AgentContactDiscover,
		Status: domain.RunStatusFailed,
		Errors: []domain.ErrorRecord{
			{Message: "429 too many requests", Timestamp: testTime},
			{Message: "rate limit exceeded", Timestamp: testTime},
		},
	})

	res, err := c.Check(context.Background(), domain.AgentContactDiscover)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckFailed, res.Status)
	assert.Equal(t, domain.CategoryRateLimit, res.Details.DominantCategory)
	assert.Len(t, res.Details.LastErrors, 2)
}

func TestCheckPartialThresholds(t *testing.T) {
	c, runs := testChecker(t)
	seedRun(t, runs, &domain.Run{
		ID:           "partial-low",
		Agent:        domain.AgentCompanyEnrich,
		Status:       domain.RunStatusPartial,
		ItemsUpdated: 3,
	})

	res, err := c.Check(context.Background(), domain.AgentCompanyEnrich)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckFailed, res.Status)

	seedRun(t, runs, &domain.Run{
		ID:           "partial-ok",
		Agent:        domain.AgentCompanyEnrich,
		Status:       domain.RunStatusPartial,
		ItemsUpdated: 12,
		ScheduledAt:  testTime.Add(-30 * time.Minute),
	})

	res, err = c.Check(context.Background(), domain.AgentCompanyEnrich)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckWarning, res.Status)
}

func TestCheckCancelledWarns(t *testing.T) {
	c, runs := testChecker(t)
	seedRun(t, runs, &domain.Run{
		Agent:  domain.AgentCRMSync,
		Status: domain.RunStatusCancelled,
	})

	res, err := c.Check(context.Background(), domain.AgentCRMSync)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckWarning, res.Status)
}

func TestCheckRunningWithinBudgetIsPending(t *testing.T) {
	c, runs := testChecker(t)
	started := testTime.Add(-time.Hour)
	seedRun(t, runs, &domain.Run{
		Agent:     domain.AgentDataQuality,
		Status:    domain.RunStatusRunning,
		StartedAt: &started,
	})

	res, err := c.Check(context.Background(), domain.AgentDataQuality)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckPending, res.Status)
}

func TestCheckTimeoutForcesTransition(t *testing.T) {
	c, runs := testChecker(t)
	started := testTime.Add(-3 * time.Hour)
	seedRun(t, runs, &domain.Run{
		ID:          "stuck",
		Agent:       domain.AgentDataQuality,
		Status:      domain.RunStatusRunning,
		StartedAt:   &started,
		ScheduledAt: testTime.Add(-3 * time.Hour),
	})

	res, err := c.Check(context.Background(), domain.AgentDataQuality)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckTimeout, res.Status)
	assert.Equal(t, domain.RunStatusTimeout, res.Details.RunStatus)

	// The transition must be visible in the ledger, not just the verdict.
	stored, err := runs.GetByID(context.Background(), "stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusTimeout, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, (3 * time.Hour).Milliseconds(), stored.DurationMs)
	require.Len(t, stored.Errors, 1)
	assert.Equal(t, domain.CategoryTimeout, stored.Errors[0].Category)
	assert.Equal(t, "supervision", stored.Errors[0].Phase)
}

func TestCheckStuckPendingTimesOut(t *testing.T) {
	c, runs := testChecker(t)
	// The agent acked the trigger but never started, so StartedAt stays nil;
	// the budget is measured from the schedule time instead.
	seedRun(t, runs, &domain.Run{
		ID:          "never-started",
		Agent:       domain.AgentCRMSync,
		Status:      domain.RunStatusPending,
		ScheduledAt: testTime.Add(-5 * time.Hour),
	})

	res, err := c.Check(context.Background(), domain.AgentCRMSync)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckTimeout, res.Status)

	stored, err := runs.GetByID(context.Background(), "never-started")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusTimeout, stored.Status)
	assert.Equal(t, (5 * time.Hour).Milliseconds(), stored.DurationMs)
}

func TestCheckMissedWhenNoRun(t *testing.T) {
	c, _ := testChecker(t)

	res, err := c.Check(context.Background(), domain.AgentCompanyEnrich)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckMissed, res.Status)
	assert.Nil(t, res.Run)
	assert.Contains(t, res.Details.Note, "no run within")
}

func TestCheckMissedWhenRunOutsideWindow(t *testing.T) {
	c, runs := testChecker(t)
	seedRun(t, runs, &domain.Run{
		Agent:       domain.AgentCompanyEnrich,
		Status:      domain.RunStatusCompleted,
		ScheduledAt: testTime.Add(-8 * time.Hour), // past the 6h lookback
	})

	res, err := c.Check(context.Background(), domain.AgentCompanyEnrich)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckMissed, res.Status)
}
