// Package strategy turns a failure history into a concrete retry decision.
package strategy

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/supervise/classify"
)

// Config holds the tunable parts of the retry policy.
type Config struct {
	BaseDelay      time.Duration `yaml:"base_delay"`       // default backoff base
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"` // larger base for rate limits
	MaxDelay       time.Duration `yaml:"max_delay"`        // hard ceiling, category-independent
	NetworkCap     time.Duration `yaml:"network_cap"`      // cap for network failures
	JitterFactor   float64       `yaml:"jitter_factor"`
}

// DefaultConfig returns the production retry policy tuning.
func DefaultConfig() Config {
	return Config{
		BaseDelay:      30 * time.Second,
		RateLimitDelay: 5 * time.Minute,
		MaxDelay:       30 * time.Minute,
		NetworkCap:     2 * time.Minute,
		JitterFactor:   0.3,
	}
}

// Decision is the outcome of a retry policy evaluation.
type Decision struct {
	ShouldRetry bool
	Delay       time.Duration
	Reason      string
	Category    domain.ErrorCategory
	Adjustments domain.Adjustments
}

// policy describes the retry behaviour for one error category. The dispatch
// table below is the single place category behaviour lives; adding a category
// is a data change, not new branching.
type policy struct {
	maxAttempts int // retry while attempt < maxAttempts; 0 = never retry
	adjust      func(attempt int) domain.Adjustments
}

var policies = map[domain.ErrorCategory]policy{
	domain.CategoryRateLimit: {
		maxAttempts: 2,
		adjust: func(int) domain.Adjustments {
			return domain.Adjustments{ReduceBatchSize: true}
		},
	},
	domain.CategoryTimeout: {
		maxAttempts: 2,
		adjust: func(attempt int) domain.Adjustments {
			return domain.Adjustments{TimeoutMultiplier: 1.5 + float64(attempt)*0.5}
		},
	},
	domain.CategoryNetwork: {
		// Transient by nature, allow one extra attempt
		maxAttempts: 3,
	},
	domain.CategoryAuth:       {maxAttempts: 0},
	domain.CategoryResource:   {maxAttempts: 0},
	domain.CategoryValidation: {maxAttempts: 0},
	domain.CategoryExternalAPI: {
		maxAttempts: 2,
		adjust: func(attempt int) domain.Adjustments {
			return domain.Adjustments{UseBackupService: attempt > 0}
		},
	},
	domain.CategoryDatabase: {maxAttempts: 2},
	domain.CategoryUnknown:  {maxAttempts: 2},
}

// Engine evaluates the retry policy. The jitter draw is the only source of
// nondeterminism and is injectable for tests. One engine serves every agent's
// supervision path, so the draw is mutex-guarded; rand.Rand is not safe for
// concurrent use.
type Engine struct {
	cfg  Config
	mu   sync.Mutex
	rand *rand.Rand
}

// New creates a strategy engine with its own jitter source.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg, rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewWithRand creates a strategy engine with a caller-supplied jitter source,
// for deterministic tests.
func NewWithRand(cfg Config, r *rand.Rand) *Engine {
	return &Engine{cfg: cfg, rand: r}
}

// Decide evaluates the retry policy for a run's errors at the given zero-based
// retry attempt. The dominant error category drives the whole decision even
// when a minority of errors belongs to a non-retryable category.
func (e *Engine) Decide(errs []domain.ErrorRecord, attempt int) Decision {
	// No recorded error detail is not a reason to block a retry; treat it as
	// an unknown failure with default backoff.
	category := domain.CategoryUnknown
	if len(errs) > 0 {
		category = classify.Summarize(errs).DominantCategory
	}

	pol := policies[category]
	if attempt >= pol.maxAttempts {
		reason := fmt.Sprintf("category %s is not retryable", category)
		if pol.maxAttempts > 0 {
			reason = fmt.Sprintf("category %s exhausted after %d attempts", category, attempt)
		}
		return Decision{ShouldRetry: false, Category: category, Reason: reason}
	}

	d := Decision{
		ShouldRetry: true,
		Category:    category,
		Delay:       e.Backoff(category, attempt),
		Reason:      fmt.Sprintf("retrying %s failure, attempt %d", category, attempt+1),
	}
	if pol.adjust != nil {
		d.Adjustments = pol.adjust(attempt)
	}
	return d
}

// Backoff computes min(base * 2^attempt + jitter, maxDelay) with
// jitter = uniform(0, JitterFactor * exponential delay). Network failures are
// additionally capped well below the global ceiling.
func (e *Engine) Backoff(category domain.ErrorCategory, attempt int) time.Duration {
	base := e.cfg.BaseDelay
	if category == domain.CategoryRateLimit {
		base = e.cfg.RateLimitDelay
	}

	exp := float64(base) * math.Pow(2, float64(attempt))
	// Clamp before converting: past attempt ~33 the exponential term
	// overflows time.Duration and would come back negative.
	if exp > float64(e.cfg.MaxDelay) {
		exp = float64(e.cfg.MaxDelay)
	}
	jitter := e.jitter() * e.cfg.JitterFactor * exp

	delay := time.Duration(exp + jitter)
	if category == domain.CategoryNetwork && delay > e.cfg.NetworkCap {
		delay = e.cfg.NetworkCap
	}
	if delay > e.cfg.MaxDelay {
		delay = e.cfg.MaxDelay
	}
	return delay
}

func (e *Engine) jitter() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rand.Float64()
}
