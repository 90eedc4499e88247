package supervise

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/infra/alert"
	"github.com/enrichops/overseer/internal/infra/storage/memory"
	"github.com/enrichops/overseer/internal/infra/trigger"
	"github.com/enrichops/overseer/internal/supervise/check"
	"github.com/enrichops/overseer/internal/supervise/orchestrate"
	"github.com/enrichops/overseer/internal/supervise/strategy"
)

var testTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeNotifier struct {
	alerts []alert.Alert
}

func (f *fakeNotifier) Notify(ctx context.Context, a alert.Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

type fakeTrigger struct {
	calls []trigger.Request
}

func (f *fakeTrigger) Trigger(ctx context.Context, agent domain.Agent, req trigger.Request) error {
	f.calls = append(f.calls, req)
	return nil
}

// -----------------------------------------------------------------------------

type fixture struct {
	supervisor *Supervisor
	store      *memory.MemoryStorage
	runs       *memory.RunRepo
	notifier   *fakeNotifier
	client     *fakeTrigger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := memory.NewMemoryStorage()
	store.SetClock(func() time.Time { return testTime })
	runs := memory.NewRunRepo(store)
	checks := memory.NewCheckRepo(store)

	checker := check.New(runs, check.DefaultConfig(), log)
	checker.SetClock(func() time.Time { return testTime })

	engine := strategy.NewWithRand(strategy.DefaultConfig(), rand.New(rand.NewSource(1)))
	client := &fakeTrigger{}
	orchestrator := orchestrate.New(runs, engine, client, log)
	orchestrator.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	notifier := &fakeNotifier{}
	s := New(checker, orchestrator, checks, notifier, log)
	s.SetClock(func() time.Time { return testTime })

	return &fixture{
		supervisor: s,
		store:      store,
		runs:       runs,
		notifier:   notifier,
		client:     client,
	}
}

func (f *fixture) seed(t *testing.T, run *domain.Run) {
	t.Helper()
	if run.ID == "" {
		run.ID = "run-1"
	}
	if run.ScheduledAt.IsZero() {
		run.ScheduledAt = testTime.Add(-time.Hour)
	}
	require.NoError(t, f.runs.Create(context.Background(), run))
}

func TestSuperviseHealthyRunTakesNoAction(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &domain.Run{
		Agent:          domain.AgentCompanyEnrich,
		Status:         domain.RunStatusCompleted,
		ItemsProcessed: 50,
		ItemsUpdated:   40,
	})

	record, err := f.supervisor.Supervise(context.Background(), domain.AgentCompanyEnrich)
	require.NoError(t, err)

	assert.Equal(t, domain.CheckPassed, record.CheckStatus)
	assert.Equal(t, domain.ActionNone, record.ActionTaken)
	assert.Empty(t, record.RetryRunID)
	assert.Empty(t, f.notifier.alerts)
	assert.Empty(t, f.client.calls)

	// Record persisted either way.
	checks := f.store.Checks()
	require.Len(t, checks, 1)
	assert.Equal(t, record.ID, checks[0].ID)
}

func TestSuperviseFailedRunRetries(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &domain.Run{
		Agent:  domain.AgentContactDiscover,
		Status: domain.RunStatusFailed,
		Errors: []domain.ErrorRecord{
			{Message: "request timed out", Timestamp: testTime},
		},
	})

	record, err := f.supervisor.Supervise(context.Background(), domain.AgentContactDiscover)
	require.NoError(t, err)

	assert.Equal(t, domain.CheckFailed, record.CheckStatus)
	assert.Equal(t, domain.ActionRetry, record.ActionTaken)
	require.NotEmpty(t, record.RetryRunID)
	require.NotNil(t, record.RetryCheckAt)
	assert.Equal(t, testTime.Add(30*time.Minute), *record.RetryCheckAt)

	child, err := f.runs.GetByID(context.Background(), record.RetryRunID)
	require.NoError(t, err)
	assert.Equal(t, "run-1", child.ParentRunID)
	assert.Equal(t, 1, child.RetryAttempt)
	require.Len(t, f.client.calls, 1)
}

func TestSuperviseCeilingEscalates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &domain.Run{
		Agent:        domain.AgentContactDiscover,
		Status:       domain.RunStatusFailed,
		TriggeredBy:  domain.TriggeredBySupervisor,
		RetryAttempt: MaxRetryAttempts,
		Errors: []domain.ErrorRecord{
			{Message: "request timed out", Timestamp: testTime},
		},
	})

	record, err := f.supervisor.Supervise(context.Background(), domain.AgentContactDiscover)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionAlertOnly, record.ActionTaken)
	assert.True(t, record.IsRetryCheck)
	assert.Empty(t, record.RetryRunID)
	assert.Empty(t, f.client.calls)

	require.Len(t, f.notifier.alerts, 1)
	a := f.notifier.alerts[0]
	assert.Equal(t, "critical", a.Severity)
	assert.Contains(t, a.Reason, "after 2 retry attempts")
	assert.Equal(t, recommendedActions[domain.CategoryTimeout], a.RecommendedAction)
}

func TestSuperviseMissedSpawnsFreshRun(t *testing.T) {
	f := newFixture(t)

	record, err := f.supervisor.Supervise(context.Background(), domain.AgentCRMSync)
	require.NoError(t, err)

	assert.Equal(t, domain.CheckMissed, record.CheckStatus)
	assert.Equal(t, domain.ActionRetry, record.ActionTaken)
	require.NotEmpty(t, record.RetryRunID)

	child, err := f.runs.GetByID(context.Background(), record.RetryRunID)
	require.NoError(t, err)
	assert.Empty(t, child.ParentRunID)
	assert.Zero(t, child.RetryAttempt)
	assert.Equal(t, domain.TriggeredBySupervisor, child.TriggeredBy)
}

func TestSuperviseNonRetryableEscalates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &domain.Run{
		Agent:  domain.AgentEmailVerify,
		Status: domain.RunStatusFailed,
		Errors: []domain.ErrorRecord{
			{Message: "401 unauthorized", Timestamp: testTime},
			{Message: "invalid api key", Timestamp: testTime},
		},
	})

	record, err := f.supervisor.Supervise(context.Background(), domain.AgentEmailVerify)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionAlertOnly, record.ActionTaken)
	assert.Empty(t, record.RetryRunID)
	assert.Empty(t, f.client.calls)

	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, recommendedActions[domain.CategoryAuth],
		f.notifier.alerts[0].RecommendedAction)
}

func TestSuperviseWarningTakesNoAction(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &domain.Run{
		Agent:          domain.AgentCompanyEnrich,
		Status:         domain.RunStatusCompleted,
		ItemsProcessed: 30,
		ItemsUpdated:   2,
	})

	record, err := f.supervisor.Supervise(context.Background(), domain.AgentCompanyEnrich)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckWarning, record.CheckStatus)
	assert.Equal(t, domain.ActionNone, record.ActionTaken)
}
