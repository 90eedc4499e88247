package domain

// RetryEntry is one persisted delayed-trigger decision. Instead of sleeping
// through the backoff in-request, the orchestrator can park the decision in a
// due-time queue; a worker fires it once the delay elapses.
type RetryEntry struct {
	Agent       Agent       `json:"agent"`
	ParentRunID string      `json:"parent_run_id"`
	Attempt     int         `json:"attempt"`
	Adjustments Adjustments `json:"adjustments"`
}
