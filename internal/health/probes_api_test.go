package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func apiProbeFor(srv *httptest.Server, minHeadroom int) *APIProbe {
	return NewAPIProbe(APIProbeConfig{
		Name:        "enrichment",
		URL:         srv.URL,
		Token:       "secret",
		MinHeadroom: minHeadroom,
	})
}

func TestAPIProbeHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("X-RateLimit-Limit", "1000")
		w.Header().Set("X-RateLimit-Remaining", "900")
	}))
	defer srv.Close()

	res := apiProbeFor(srv, 100).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "api_enrichment", res.Probe)
	assert.Equal(t, "900", res.Details["rate_limit_remaining"])
}

func TestAPIProbeCredentialRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	res := apiProbeFor(srv, 0).Check(context.Background())
	assert.Equal(t, StatusCritical, res.Status)
	assert.Contains(t, res.Message, "credential rejected")
}

func TestAPIProbeRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	res := apiProbeFor(srv, 0).Check(context.Background())
	assert.Equal(t, StatusWarning, res.Status)
	assert.Contains(t, res.Message, "rate limiting")
}

func TestAPIProbeLowHeadroom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "5")
	}))
	defer srv.Close()

	res := apiProbeFor(srv, 100).Check(context.Background())
	assert.Equal(t, StatusWarning, res.Status)
	assert.Contains(t, res.Message, "headroom low")
}

func TestAPIProbeServerErrorWarns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := apiProbeFor(srv, 0).Check(context.Background())
	assert.Equal(t, StatusWarning, res.Status)
}

func TestAPIProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // no listener anymore

	res := apiProbeFor(srv, 0).Check(context.Background())
	assert.Equal(t, StatusCritical, res.Status)
	assert.Contains(t, res.Message, "unreachable")
}

func TestCompletenessProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ratios":{"website":0.95,"industry":0.85,"employee_count":0.6}}`))
	}))
	defer srv.Close()

	p := NewCompletenessProbe(srv.URL, "", 0.9, 0.7)
	res := p.Check(context.Background())

	// Worst field (employee_count at 0.6) falls below the critical floor.
	assert.Equal(t, StatusCritical, res.Status)
	assert.Contains(t, res.Message, "employee_count")
}

func TestCompletenessProbeWarnBand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ratios":{"website":0.85}}`))
	}))
	defer srv.Close()

	p := NewCompletenessProbe(srv.URL, "", 0.9, 0.7)
	res := p.Check(context.Background())
	assert.Equal(t, StatusWarning, res.Status)
}

func TestCompletenessProbeHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ratios":{"website":0.99}}`))
	}))
	defer srv.Close()

	p := NewCompletenessProbe(srv.URL, "", 0.9, 0.7)
	res := p.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
}

func TestCompletenessProbeBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	p := NewCompletenessProbe(srv.URL, "", 0.9, 0.7)
	res := p.Check(context.Background())
	assert.Equal(t, StatusWarning, res.Status)
}
