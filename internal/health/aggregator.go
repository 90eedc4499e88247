package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/enrichops/overseer/internal/metrics"
)

// Aggregator fans independent probes out concurrently and folds their
// results into one report. Probes share no mutable state; a slow probe only
// costs its own timeout slot.
type Aggregator struct {
	probes       []Probe
	probeTimeout time.Duration

	mu         sync.Mutex
	lastReport *Report
	lastCheck  time.Time
	cacheFor   time.Duration
}

// NewAggregator creates an aggregator with a bounded per-probe timeout.
func NewAggregator(probes []Probe, probeTimeout time.Duration) *Aggregator {
	return &Aggregator{
		probes:       probes,
		probeTimeout: probeTimeout,
		cacheFor:     10 * time.Second,
	}
}

// Run executes all probes concurrently and aggregates worst-wins. A probe
// that overruns its timeout is reported critical ("unreachable"), never a
// fatal error of the aggregation. Reports are cached briefly to keep probe
// traffic off hot health endpoints.
func (a *Aggregator) Run(ctx context.Context) Report {
	a.mu.Lock()
	if a.lastReport != nil && time.Since(a.lastCheck) < a.cacheFor {
		cached := *a.lastReport
		a.mu.Unlock()
		return cached
	}
	a.mu.Unlock()

	results := make([]Result, len(a.probes))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range a.probes {
		g.Go(func() error {
			results[i] = a.runProbe(ctx, p)
			return nil
		})
	}
	_ = g.Wait() // probes never return errors, only results

	report := Report{Status: StatusHealthy, Probes: results, CheckedAt: time.Now()}
	for _, r := range results {
		if severity(r.Status) > severity(report.Status) {
			report.Status = r.Status
		}
		if r.Status == StatusCritical {
			if hint := recommendationFor(r.Probe); hint != "" {
				report.Recommendations = append(report.Recommendations,
					fmt.Sprintf("%s: %s", r.Probe, hint))
			}
		}
		metrics.ProbeStatus.WithLabelValues(r.Probe).Set(float64(severity(r.Status)))
	}
	sort.Strings(report.Recommendations)

	a.mu.Lock()
	a.lastReport = &report
	a.lastCheck = time.Now()
	a.mu.Unlock()

	return report
}

// runProbe bounds one probe by the per-probe timeout.
func (a *Aggregator) runProbe(ctx context.Context, p Probe) Result {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- p.Check(ctx)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return Result{
			Probe:     p.Name(),
			Status:    StatusCritical,
			Message:   fmt.Sprintf("probe unreachable: exceeded %s", a.probeTimeout),
			LatencyMs: a.probeTimeout.Milliseconds(),
		}
	}
}

func recommendationFor(probe string) string {
	if strings.HasPrefix(probe, "api_") {
		return apiRecommendation
	}
	return recommendations[probe]
}
