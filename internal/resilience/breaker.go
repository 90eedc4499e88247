// Package resilience provides circuit breakers for tracked external
// dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // normal operation, requests flow through
	StateOpen                  // failures exceeded threshold, requests blocked
	StateHalfOpen              // testing if the dependency recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when the circuit is open and calls are blocked.
var ErrOpen = errors.New("circuit breaker is open")

// Config configures breaker behaviour.
type Config struct {
	Threshold  int           // consecutive failures before opening
	ResetAfter time.Duration // wait before attempting half-open
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Threshold: 5, ResetAfter: 30 * time.Second}
}

// Breaker implements the circuit breaker pattern for one dependency.
type Breaker struct {
	mu          sync.Mutex
	cfg         Config
	state       State
	failures    int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed, transitioning open → half-open
// once the reset window has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.lastFailure) >= b.cfg.ResetAfter {
			b.state = StateHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// Record feeds a call outcome into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
		}
		return
	}

	b.failures++
	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.Threshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		// Any failure while probing re-opens
		b.state = StateOpen
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.lastFailure = time.Time{}
	b.state = StateClosed
}

// Registry manages one breaker per named dependency.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
}

// NewRegistry creates a registry with default breaker config.
func NewRegistry(defaults Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), defaults: defaults}
}

// Get retrieves or creates the breaker for a dependency.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(r.defaults)
	r.breakers[name] = b
	return b
}

// States returns a snapshot of every tracked breaker's state.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
