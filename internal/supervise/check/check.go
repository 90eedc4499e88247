// Package check derives a supervision verdict from the latest run of an agent.
package check

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/infra/storage"
	"github.com/enrichops/overseer/internal/supervise/classify"
)

// Config holds the check-side supervision settings.
type Config struct {
	LookbackWindow time.Duration `yaml:"lookback_window"` // how far back "latest run" reaches
	TimeoutBudget  time.Duration `yaml:"timeout_budget"`  // running longer than this is a timeout
	MinYield       map[domain.Agent]int
}

// DefaultConfig returns production supervision settings. Per-agent minimum
// yields are configuration, not logic; 0 means "no floor".
func DefaultConfig() Config {
	return Config{
		LookbackWindow: 6 * time.Hour,
		TimeoutBudget:  2 * time.Hour,
		MinYield: map[domain.Agent]int{
			domain.AgentCompanyEnrich:   10,
			domain.AgentContactDiscover: 5,
			domain.AgentEmailVerify:     20,
			domain.AgentCRMSync:         1,
			domain.AgentNewsMonitor:     0,
			domain.AgentDataQuality:     0,
		},
	}
}

// Result is the verdict on one agent's latest run.
type Result struct {
	Agent   domain.Agent
	Run     *domain.Run // nil when the check is MISSED
	Status  domain.CheckStatus
	Details domain.CheckDetails
}

// Checker inspects the most recent run of an agent and derives a verdict.
// Detecting a timeout force-transitions the run in the ledger; that is the
// single place outside the agent itself that mutates run status.
type Checker struct {
	runs storage.RunRepository
	cfg  Config
	log  *slog.Logger
	now  func() time.Time
}

// New creates a checker.
func New(runs storage.RunRepository, cfg Config, log *slog.Logger) *Checker {
	return &Checker{runs: runs, cfg: cfg, log: log, now: time.Now}
}

// SetClock overrides the clock, for tests.
func (c *Checker) SetClock(now func() time.Time) {
	c.now = now
}

// Check evaluates the latest run of the agent within the lookback window.
func (c *Checker) Check(ctx context.Context, agent domain.Agent) (Result, error) {
	run, err := c.runs.Latest(ctx, agent, c.cfg.LookbackWindow)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read latest run for %s: %w", agent, err)
	}

	if run == nil {
		return Result{
			Agent:  agent,
			Status: domain.CheckMissed,
			Details: domain.CheckDetails{
				ExpectedMinimum: c.cfg.MinYield[agent],
				Note:            fmt.Sprintf("no run within last %s", c.cfg.LookbackWindow),
			},
		}, nil
	}

	res := Result{Agent: agent, Run: run}
	res.Details = c.buildDetails(run)

	switch run.Status {
	case domain.RunStatusRunning, domain.RunStatusPending:
		if run.Elapsed(c.now()) > c.cfg.TimeoutBudget {
			if err := c.observeTimeout(ctx, run); err != nil {
				return Result{}, err
			}
			run.Status = domain.RunStatusTimeout
			res.Details.RunStatus = domain.RunStatusTimeout
			res.Status = domain.CheckTimeout
		} else {
			res.Status = domain.CheckPending
		}

	case domain.RunStatusFailed, domain.RunStatusTimeout:
		res.Status = domain.CheckFailed

	case domain.RunStatusCancelled:
		res.Status = domain.CheckWarning

	case domain.RunStatusPartial:
		if run.SuccessfulItems() < c.cfg.MinYield[agent] {
			res.Status = domain.CheckFailed
		} else {
			res.Status = domain.CheckWarning
		}

	case domain.RunStatusCompleted:
		if run.SuccessfulItems() < c.cfg.MinYield[agent] && run.ItemsProcessed > 0 {
			res.Status = domain.CheckWarning
			res.Details.Note = "low output"
		} else if run.SuccessfulItems() < c.cfg.MinYield[agent] {
			res.Status = domain.CheckWarning
			res.Details.Note = "completed without processing anything"
		} else {
			res.Status = domain.CheckPassed
		}

	default:
		res.Status = domain.CheckFailed
		res.Details.Note = fmt.Sprintf("unexpected run status %q", run.Status)
	}

	return res, nil
}

// observeTimeout is the one narrow mutation a check performs: transition a
// stuck run to timeout before returning the verdict. Cooperative only; the
// underlying execution is not killed.
func (c *Checker) observeTimeout(ctx context.Context, run *domain.Run) error {
	now := c.now()
	durMs := run.Elapsed(now).Milliseconds()
	rec := domain.ErrorRecord{
		Message:   fmt.Sprintf("run exceeded timeout budget of %s", c.cfg.TimeoutBudget),
		Phase:     "supervision",
		Category:  domain.CategoryTimeout,
		Timestamp: now,
	}
	err := c.runs.UpdateStatus(ctx, run.ID, domain.RunStatusTimeout, storage.RunUpdate{
		CompletedAt: &now,
		DurationMs:  &durMs,
		AppendError: &rec,
	})
	if err != nil {
		return fmt.Errorf("failed to mark run %s timed out: %w", run.ID, err)
	}
	c.log.Warn("run exceeded timeout budget",
		"agent", run.Agent, "run_id", run.ID, "budget", c.cfg.TimeoutBudget)
	return nil
}

func (c *Checker) buildDetails(run *domain.Run) domain.CheckDetails {
	d := domain.CheckDetails{
		RunStatus:       run.Status,
		DurationMs:      run.DurationMs,
		ItemsProcessed:  run.ItemsProcessed,
		SuccessfulItems: run.SuccessfulItems(),
		ExpectedMinimum: c.cfg.MinYield[run.Agent],
		LastErrors:      CondenseErrors(run.Errors, 3),
	}
	if len(run.Errors) > 0 {
		summary := classify.Summarize(run.Errors)
		d.ErrorsByCategory = summary.ByCategory
		d.DominantCategory = summary.DominantCategory
	}
	return d
}
