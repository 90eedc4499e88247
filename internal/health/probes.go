package health

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/enrichops/overseer/internal/infra/redis"
	"github.com/enrichops/overseer/internal/infra/storage"
	"github.com/enrichops/overseer/internal/resilience"
)

// Probe is one independent, read-only health check.
type Probe interface {
	Name() string
	Check(ctx context.Context) Result
}

// -----------------------------------------------------------------------------
// Record store
// -----------------------------------------------------------------------------

// Pinger is the slice of the record store the probe needs.
type Pinger interface {
	Health(ctx context.Context) error
}

// StoreProbe checks record-store reachability and latency.
type StoreProbe struct {
	Store       Pinger
	WarnLatency time.Duration
}

func (p *StoreProbe) Name() string { return "record_store" }

func (p *StoreProbe) Check(ctx context.Context) Result {
	start := time.Now()
	err := p.Store.Health(ctx)
	latency := time.Since(start)

	res := Result{Probe: p.Name(), LatencyMs: latency.Milliseconds()}
	switch {
	case err != nil:
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("record store unreachable: %v", err)
	case p.WarnLatency > 0 && latency > p.WarnLatency:
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("record store slow: %s", latency.Round(time.Millisecond))
	default:
		res.Status = StatusHealthy
	}
	return res
}

// -----------------------------------------------------------------------------
// Processing queue depth
// -----------------------------------------------------------------------------

// QueueDepthProbe watches for stale running runs and recent failures.
type QueueDepthProbe struct {
	Runs          storage.RunRepository
	Queue         *redis.Client // optional; retry queue depth
	TimeoutBudget time.Duration
	FailureWindow time.Duration
	WarnFailures  int
	CriticalStale int
}

func (p *QueueDepthProbe) Name() string { return "processing_queue" }

func (p *QueueDepthProbe) Check(ctx context.Context) Result {
	res := Result{Probe: p.Name(), Status: StatusHealthy, Details: map[string]any{}}

	stale, err := p.Runs.CountStaleRunning(ctx, p.TimeoutBudget)
	if err != nil {
		return Result{Probe: p.Name(), Status: StatusCritical,
			Message: fmt.Sprintf("cannot read run ledger: %v", err)}
	}
	res.Details["stale_running"] = stale

	failures, err := p.Runs.CountRecentFailures(ctx, time.Now().Add(-p.FailureWindow))
	if err != nil {
		return Result{Probe: p.Name(), Status: StatusCritical,
			Message: fmt.Sprintf("cannot read run ledger: %v", err)}
	}
	res.Details["recent_failures"] = failures

	if p.Queue != nil {
		if depth, err := p.Queue.RetryQueueDepth(ctx); err == nil {
			res.Details["retry_queue_depth"] = depth
		}
	}

	switch {
	case stale >= p.CriticalStale && p.CriticalStale > 0:
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("%d runs stuck past the timeout budget", stale)
	case stale > 0:
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("%d run(s) past the timeout budget", stale)
	case failures >= p.WarnFailures && p.WarnFailures > 0:
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("%d failures in the last %s", failures, p.FailureWindow)
	}
	return res
}

// -----------------------------------------------------------------------------
// Cache
// -----------------------------------------------------------------------------

// CacheProbe checks cache reachability and hit rate.
type CacheProbe struct {
	Cache       *redis.Client
	WarnHitRate float64 // below this is a warning
}

func (p *CacheProbe) Name() string { return "cache" }

func (p *CacheProbe) Check(ctx context.Context) Result {
	start := time.Now()
	stats, err := p.Cache.CacheStats(ctx)
	res := Result{Probe: p.Name(), LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("cache unreachable: %v", err)
		return res
	}

	rate := stats.HitRate()
	res.Details = map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"hit_rate": strconv.FormatFloat(rate, 'f', 3, 64),
	}
	if rate < p.WarnHitRate {
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("cache hit rate %.1f%% below %.1f%%",
			rate*100, p.WarnHitRate*100)
	} else {
		res.Status = StatusHealthy
	}
	return res
}

// -----------------------------------------------------------------------------
// Circuit breakers
// -----------------------------------------------------------------------------

// BreakerProbe reports the state of every tracked dependency breaker.
type BreakerProbe struct {
	Breakers *resilience.Registry
}

func (p *BreakerProbe) Name() string { return "circuit_breakers" }

func (p *BreakerProbe) Check(ctx context.Context) Result {
	states := p.Breakers.States()
	res := Result{Probe: p.Name(), Status: StatusHealthy, Details: map[string]any{}}

	open, halfOpen := 0, 0
	for name, state := range states {
		res.Details[name] = state.String()
		switch state {
		case resilience.StateOpen:
			open++
		case resilience.StateHalfOpen:
			halfOpen++
		}
	}

	switch {
	case open > 0:
		res.Status = StatusCritical
		res.Message = fmt.Sprintf("%d dependency circuit(s) open", open)
	case halfOpen > 0:
		res.Status = StatusWarning
		res.Message = fmt.Sprintf("%d dependency circuit(s) recovering", halfOpen)
	}
	return res
}
