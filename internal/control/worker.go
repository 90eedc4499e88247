package control

import (
	"context"
	"time"

	"github.com/enrichops/overseer/internal/metrics"
)

// runQueueWorker drains the delayed retry queue: entries whose backoff has
// elapsed are materialized into a child run and an agent trigger call. This
// is the non-blocking counterpart to sleeping through the backoff in-request.
func (o *Overseer) runQueueWorker(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Supervision.QueuePoll)
	defer ticker.Stop()

	o.log.Info("retry queue worker started", "poll", o.cfg.Supervision.QueuePoll)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.drainDue(ctx)
		}
	}
}

func (o *Overseer) drainDue(ctx context.Context) {
	for {
		entry, found, err := o.redisClient.PopDueRetry(ctx)
		if err != nil {
			o.log.Error("failed to pop retry queue", "error", err)
			return
		}
		if !found {
			break
		}

		if _, err := o.orchestrator.Fire(ctx, *entry); err != nil {
			o.log.Error("failed to fire queued retry",
				"agent", entry.Agent, "parent_run_id", entry.ParentRunID, "error", err)
		}
	}

	if depth, err := o.redisClient.RetryQueueDepth(ctx); err == nil {
		metrics.RetryQueueDepth.Set(float64(depth))
	}
}
