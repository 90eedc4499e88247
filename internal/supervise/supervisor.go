// Package supervise runs the check → classify → decide → orchestrate loop
// for each agent and escalates once retries are exhausted.
package supervise

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/infra/alert"
	"github.com/enrichops/overseer/internal/infra/storage"
	"github.com/enrichops/overseer/internal/metrics"
	"github.com/enrichops/overseer/internal/supervise/check"
	"github.com/enrichops/overseer/internal/supervise/orchestrate"
)

// MaxRetryAttempts is the hard ceiling on retries per run chain. Reaching it
// escalates to a human-actionable alert; this is not a backoff-derived bound.
const MaxRetryAttempts = 2

// recommendedActions maps alert reasons to remediation hints for operators.
var recommendedActions = map[domain.ErrorCategory]string{
	domain.CategoryRateLimit:   "review provider quota and batch sizing",
	domain.CategoryTimeout:     "raise the agent timeout budget or narrow its workload",
	domain.CategoryNetwork:     "check connectivity to the provider",
	domain.CategoryAuth:        "rotate or re-issue the provider credentials",
	domain.CategoryResource:    "inspect memory/disk on the worker host",
	domain.CategoryValidation:  "fix the failing payload or mapping code",
	domain.CategoryExternalAPI: "check the provider status page",
	domain.CategoryDatabase:    "inspect database health and recent migrations",
	domain.CategoryUnknown:     "inspect recent logs for the agent",
}

// Supervisor evaluates one agent per invocation. The external scheduler
// guarantees at most one concurrent invocation per agent; no internal mutual
// exclusion is provided.
type Supervisor struct {
	checker      *check.Checker
	orchestrator *orchestrate.Orchestrator
	checks       storage.CheckRepository
	notifier     alert.Notifier
	log          *slog.Logger
	recheckAfter time.Duration
	now          func() time.Time
}

// New creates a supervisor.
func New(
	checker *check.Checker,
	orchestrator *orchestrate.Orchestrator,
	checks storage.CheckRepository,
	notifier alert.Notifier,
	log *slog.Logger,
) *Supervisor {
	return &Supervisor{
		checker:      checker,
		orchestrator: orchestrator,
		checks:       checks,
		notifier:     notifier,
		log:          log,
		recheckAfter: 30 * time.Minute,
		now:          time.Now,
	}
}

// SetClock overrides the clock, for tests.
func (s *Supervisor) SetClock(now func() time.Time) {
	s.now = now
}

// SetRecheckAfter overrides how long after spawning a retry the follow-up
// check is scheduled.
func (s *Supervisor) SetRecheckAfter(d time.Duration) {
	if d > 0 {
		s.recheckAfter = d
	}
}

// Supervise checks the agent's latest run and applies the action decision:
// PASSED/WARNING/PENDING take no action; FAILED/TIMEOUT/MISSED enter the
// retry path while under the attempt ceiling and escalate past it. A check
// record is persisted either way. Failures inside the retry path never
// escape; the caller always gets a completed check record.
func (s *Supervisor) Supervise(ctx context.Context, agent domain.Agent) (*domain.CheckRecord, error) {
	res, err := s.checker.Check(ctx, agent)
	if err != nil {
		return nil, err
	}

	record := &domain.CheckRecord{
		ID:          uuid.New().String(),
		Agent:       agent,
		CheckStatus: res.Status,
		ActionTaken: domain.ActionNone,
		Details:     res.Details,
		CheckedAt:   s.now(),
	}
	if res.Run != nil {
		record.RunID = res.Run.ID
		record.IsRetryCheck = res.Run.TriggeredBy == domain.TriggeredBySupervisor
	}
	metrics.ChecksTotal.WithLabelValues(string(agent), string(res.Status)).Inc()

	if res.Status.NeedsAction() {
		s.act(ctx, agent, res, record)
	}

	if err := s.checks.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist check record: %w", err)
	}

	// A spawned retry needs re-examination once it has had time to finish.
	if record.ActionTaken == domain.ActionRetry && record.RetryRunID != "" {
		at := s.now().Add(s.recheckAfter)
		record.RetryCheckAt = &at
		if err := s.checks.StampRetryCheck(ctx, record.ID, at); err != nil {
			s.log.Warn("failed to stamp retry check", "check_id", record.ID, "error", err)
		}
	}

	s.log.Info("supervision check completed",
		"agent", agent, "verdict", res.Status, "action", record.ActionTaken)
	return record, nil
}

// act runs the retry-or-escalate decision for an actionable verdict.
func (s *Supervisor) act(ctx context.Context, agent domain.Agent, res check.Result, record *domain.CheckRecord) {
	// MISSED has no run at all: treat it as attempt 0 so a fresh run gets
	// scheduled through the normal retry machinery.
	attempt := 0
	parentID := ""
	if res.Run != nil {
		attempt = res.Run.RetryAttempt
		parentID = res.Run.ID
	}

	if attempt >= MaxRetryAttempts {
		record.ActionTaken = domain.ActionAlertOnly
		s.escalate(ctx, agent, res, attempt)
		return
	}

	record.ActionTaken = domain.ActionRetry
	if parentID == "" {
		// No parent to chain from; spawn a fresh supervisor-triggered run.
		child, err := s.orchestrator.Fire(ctx, domain.RetryEntry{Agent: agent})
		if err != nil {
			s.log.Error("failed to spawn missed run", "agent", agent, "error", err)
			return
		}
		if child != nil {
			record.RetryRunID = child.ID
		}
		return
	}

	child, err := s.orchestrator.Trigger(ctx, agent, parentID)
	if err != nil {
		s.log.Error("retry orchestration failed", "agent", agent, "error", err)
		return
	}
	if child != nil {
		record.RetryRunID = child.ID
		return
	}

	// Policy declined: a non-retryable dominant category is a terminal state
	// worth an operator's attention even under the attempt ceiling.
	if nonRetryable[res.Details.DominantCategory] {
		record.ActionTaken = domain.ActionAlertOnly
		s.escalate(ctx, agent, res, attempt)
	}
}

var nonRetryable = map[domain.ErrorCategory]bool{
	domain.CategoryAuth:       true,
	domain.CategoryResource:   true,
	domain.CategoryValidation: true,
}

func (s *Supervisor) escalate(ctx context.Context, agent domain.Agent, res check.Result, attempt int) {
	category := res.Details.DominantCategory
	if category == "" {
		category = domain.CategoryUnknown
	}

	a := alert.Alert{
		Agent:             agent,
		Severity:          "critical",
		Reason:            fmt.Sprintf("%s after %d retry attempts", res.Status, attempt),
		RecommendedAction: recommendedActions[category],
		Details:           res.Details,
		Timestamp:         s.now(),
	}
	if err := s.notifier.Notify(ctx, a); err != nil {
		s.log.Error("alert dispatch failed", "agent", agent, "error", err)
	}
}
