package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(Config{Threshold: 3, ResetAfter: time.Minute})

	for i := 0; i < 2; i++ {
		b.Record(errBoom)
		assert.Equal(t, StateClosed, b.State())
		assert.True(t, b.Allow())
	}

	b.Record(errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(Config{Threshold: 3, ResetAfter: time.Minute})

	b.Record(errBoom)
	b.Record(errBoom)
	b.Record(nil)
	assert.Zero(t, b.Failures())

	b.Record(errBoom)
	b.Record(errBoom)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAfterReset(t *testing.T) {
	b := NewBreaker(Config{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	b.Record(errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// Success while probing closes it again.
	b.Record(nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(Config{Threshold: 1, ResetAfter: 10 * time.Millisecond})

	b.Record(errBoom)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, b.Allow())

	b.Record(errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(Config{Threshold: 1, ResetAfter: time.Hour})
	b.Record(errBoom)
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, ResetAfter: time.Hour})

	a := r.Get("company_enrich")
	assert.Same(t, a, r.Get("company_enrich"))

	r.Get("crm_sync").Record(errBoom)

	states := r.States()
	assert.Equal(t, StateClosed, states["company_enrich"])
	assert.Equal(t, StateOpen, states["crm_sync"])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
