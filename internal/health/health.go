// Package health runs independent system probes and folds them into one
// report.
package health

import "time"

// Status represents the health of the system or of one probe.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// severity orders statuses for worst-wins aggregation.
func severity(s Status) int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Result is the outcome of one probe.
type Result struct {
	Probe     string         `json:"probe"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	LatencyMs int64          `json:"latency_ms"`
}

// Report is the aggregated system health report.
type Report struct {
	Status          Status    `json:"status"`
	Probes          []Result  `json:"probes"`
	Recommendations []string  `json:"recommendations,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// recommendations maps probe names to remediation hints, emitted only for
// critical probes.
var recommendations = map[string]string{
	"record_store":      "check database connectivity and connection pool limits",
	"processing_queue":  "inspect stuck runs and requeue or cancel them",
	"cache":             "check redis memory pressure and eviction policy",
	"circuit_breakers":  "an external dependency is failing repeatedly; check its status",
	"data_completeness": "recent enrichment output is incomplete; inspect connector yields",
}

// apiRecommendation is the hint for per-API credential probes, which carry
// the API name in the probe name.
const apiRecommendation = "verify the API credential and remaining quota"
