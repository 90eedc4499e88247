// Package orchestrate materializes retry decisions into new runs and agent
// trigger calls.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/infra/storage"
	"github.com/enrichops/overseer/internal/infra/trigger"
	"github.com/enrichops/overseer/internal/metrics"
	"github.com/enrichops/overseer/internal/supervise/strategy"
)

// TriggerClient invokes an agent's external execution entry point.
type TriggerClient interface {
	Trigger(ctx context.Context, agent domain.Agent, req trigger.Request) error
}

// RetryQueue persists delayed-trigger decisions for the queue worker.
type RetryQueue interface {
	EnqueueRetry(ctx context.Context, entry domain.RetryEntry, delay time.Duration) error
}

// Orchestrator turns a retry decision into a child run and an external
// trigger call. Callers must not invoke it concurrently for the same parent
// run; one supervisor invocation spawns at most one child per parent.
type Orchestrator struct {
	runs    storage.RunRepository
	engine  *strategy.Engine
	client  TriggerClient
	queue   RetryQueue // nil when running in blocking mode
	log     *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	blocked bool
}

// New creates an orchestrator that blocks through the backoff delay. This
// holds an execution slot for up to the max delay; prefer NewQueued in
// production.
func New(runs storage.RunRepository, engine *strategy.Engine, client TriggerClient, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		runs:    runs,
		engine:  engine,
		client:  client,
		log:     log,
		sleep:   sleepCtx,
		now:     time.Now,
		blocked: true,
	}
}

// NewQueued creates an orchestrator that persists the delayed trigger into
// the retry queue instead of sleeping; a queue worker fires it once due.
func NewQueued(runs storage.RunRepository, engine *strategy.Engine, client TriggerClient, queue RetryQueue, log *slog.Logger) *Orchestrator {
	o := New(runs, engine, client, log)
	o.queue = queue
	o.blocked = false
	return o
}

// SetSleep overrides the backoff wait, for tests.
func (o *Orchestrator) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	o.sleep = fn
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Trigger resolves the parent run, asks the strategy engine for a decision
// and materializes it. Returns the child run, or nil when policy said no,
// when the trigger was deferred to the queue, or when the orchestration
// attempt itself failed.
func (o *Orchestrator) Trigger(ctx context.Context, agent domain.Agent, parentRunID string) (*domain.Run, error) {
	parent, err := o.runs.GetByID(ctx, parentRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parent run %s: %w", parentRunID, err)
	}

	decision := o.engine.Decide(parent.Errors, parent.RetryAttempt)
	if !decision.ShouldRetry {
		o.log.Info("retry declined",
			"agent", agent, "parent_run_id", parentRunID,
			"category", decision.Category, "reason", decision.Reason)
		return nil, nil
	}

	o.log.Info("retry scheduled",
		"agent", agent, "parent_run_id", parentRunID,
		"attempt", parent.RetryAttempt+1, "delay", decision.Delay,
		"category", decision.Category)

	entry := domain.RetryEntry{
		Agent:       agent,
		ParentRunID: parentRunID,
		Attempt:     parent.RetryAttempt + 1,
		Adjustments: decision.Adjustments,
	}

	if !o.blocked && o.queue != nil {
		if err := o.queue.EnqueueRetry(ctx, entry, decision.Delay); err != nil {
			return nil, fmt.Errorf("failed to enqueue retry: %w", err)
		}
		metrics.RetriesTotal.WithLabelValues(string(agent), string(decision.Category)).Inc()
		return nil, nil
	}

	// Blocking suspension of the whole invocation until the backoff elapses.
	if err := o.sleep(ctx, decision.Delay); err != nil {
		return nil, err
	}

	metrics.RetriesTotal.WithLabelValues(string(agent), string(decision.Category)).Inc()
	return o.Fire(ctx, entry)
}

// Fire creates the child run and invokes the agent's execution entry point.
// A trigger failure marks the just-created run failed and returns nil: the
// orchestration attempt failed regardless of what policy said.
func (o *Orchestrator) Fire(ctx context.Context, entry domain.RetryEntry) (*domain.Run, error) {
	child := &domain.Run{
		ID:           uuid.New().String(),
		Agent:        entry.Agent,
		Status:       domain.RunStatusPending,
		TriggeredBy:  domain.TriggeredBySupervisor,
		ParentRunID:  entry.ParentRunID,
		RetryAttempt: entry.Attempt,
		ScheduledAt:  o.now(),
		Adjustments:  entry.Adjustments,
	}
	if err := o.runs.Create(ctx, child); err != nil {
		return nil, fmt.Errorf("failed to create retry run: %w", err)
	}

	err := o.client.Trigger(ctx, entry.Agent, trigger.Request{
		RunID:       child.ID,
		Adjustments: entry.Adjustments,
	})
	if err != nil {
		o.log.Error("retry trigger failed",
			"agent", entry.Agent, "run_id", child.ID, "error", err)
		now := o.now()
		rec := domain.ErrorRecord{
			Message:   fmt.Sprintf("retry trigger failed: %v", err),
			Phase:     "orchestration",
			Timestamp: now,
		}
		updateErr := o.runs.UpdateStatus(ctx, child.ID, domain.RunStatusFailed, storage.RunUpdate{
			CompletedAt: &now,
			AppendError: &rec,
		})
		if updateErr != nil {
			o.log.Error("failed to mark retry run failed",
				"run_id", child.ID, "error", updateErr)
		}
		return nil, nil
	}

	o.log.Info("retry run triggered",
		"agent", entry.Agent, "run_id", child.ID, "attempt", entry.Attempt)
	return child, nil
}
