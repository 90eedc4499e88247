// Package report builds periodic rollups over the run ledger.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/infra/storage"
)

// AgentStats is the rollup for one agent over the report window.
type AgentStats struct {
	Agent          domain.Agent `json:"agent"`
	Runs           int          `json:"runs"`
	Completed      int          `json:"completed"`
	Failed         int          `json:"failed"`
	Retries        int          `json:"retries"`
	SuccessRate    float64      `json:"success_rate"`
	ItemsProcessed int          `json:"items_processed"`
	ItemsUpdated   int          `json:"items_updated"`
	ItemsCreated   int          `json:"items_created"`
	TotalCost      float64      `json:"total_cost"`
}

// Snapshot is one quality rollup over the run ledger.
type Snapshot struct {
	Window      time.Duration `json:"window"`
	GeneratedAt time.Time     `json:"generated_at"`
	Agents      []AgentStats  `json:"agents"`
}

// Generator aggregates snapshots from the run ledger. Read-only consumer;
// snapshots carry no supervision logic of their own.
type Generator struct {
	runs storage.RunRepository
}

// NewGenerator creates a snapshot generator.
func NewGenerator(runs storage.RunRepository) *Generator {
	return &Generator{runs: runs}
}

// Generate rolls up runs per agent over the window.
func (g *Generator) Generate(ctx context.Context, window time.Duration) (*Snapshot, error) {
	snap := &Snapshot{Window: window, GeneratedAt: time.Now()}
	since := time.Now().Add(-window)

	for _, agent := range domain.KnownAgents {
		runs, err := g.runs.ListSince(ctx, agent, since)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs for %s: %w", agent, err)
		}
		if len(runs) == 0 {
			continue
		}

		stats := AgentStats{Agent: agent, Runs: len(runs)}
		for _, run := range runs {
			switch run.Status {
			case domain.RunStatusCompleted, domain.RunStatusPartial:
				stats.Completed++
			case domain.RunStatusFailed, domain.RunStatusTimeout:
				stats.Failed++
			}
			if run.RetryAttempt > 0 {
				stats.Retries++
			}
			stats.ItemsProcessed += run.ItemsProcessed
			stats.ItemsUpdated += run.ItemsUpdated
			stats.ItemsCreated += run.ItemsCreated
			if run.TotalCost != nil {
				stats.TotalCost += *run.TotalCost
			}
		}
		if terminal := stats.Completed + stats.Failed; terminal > 0 {
			stats.SuccessRate = float64(stats.Completed) / float64(terminal) * 100
		}
		snap.Agents = append(snap.Agents, stats)
	}

	return snap, nil
}
