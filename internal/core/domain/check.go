package domain

import "time"

// CheckStatus is the supervisor's verdict on the latest run of an agent.
type CheckStatus string

const (
	CheckPassed  CheckStatus = "passed"
	CheckWarning CheckStatus = "warning"
	CheckFailed  CheckStatus = "failed"
	CheckTimeout CheckStatus = "timeout"
	CheckMissed  CheckStatus = "missed"
	CheckPending CheckStatus = "pending"
)

// NeedsAction reports whether the verdict should enter the retry/alert path.
func (s CheckStatus) NeedsAction() bool {
	switch s {
	case CheckFailed, CheckTimeout, CheckMissed:
		return true
	}
	return false
}

// CheckAction records what the supervisor did about a verdict.
type CheckAction string

const (
	ActionNone      CheckAction = "none"
	ActionRetry     CheckAction = "retry"
	ActionAlertOnly CheckAction = "alert_only"
)

// CondensedError is the trimmed form of an ErrorRecord carried in check
// details so alerting has something actionable without re-reading the run.
type CondensedError struct {
	Message   string        `json:"message"`
	Category  ErrorCategory `json:"category"`
	StackLine string        `json:"stack_line,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// CheckDetails is the structured payload of a check record.
type CheckDetails struct {
	RunStatus        RunStatus             `json:"run_status,omitempty"`
	DurationMs       int64                 `json:"duration_ms,omitempty"`
	ItemsProcessed   int                   `json:"items_processed"`
	SuccessfulItems  int                   `json:"successful_items"`
	ExpectedMinimum  int                   `json:"expected_minimum"`
	LastErrors       []CondensedError      `json:"last_errors,omitempty"`
	ErrorsByCategory map[ErrorCategory]int `json:"errors_by_category,omitempty"`
	DominantCategory ErrorCategory         `json:"dominant_category,omitempty"`
	Note             string                `json:"note,omitempty"`
}

// CheckRecord is one supervisor verdict on one run. Immutable after creation
// except for stamping RetryCheckAt when a follow-up check is scheduled.
type CheckRecord struct {
	ID           string       `json:"id"`
	Agent        Agent        `json:"agent"`
	RunID        string       `json:"run_id,omitempty"`
	CheckStatus  CheckStatus  `json:"check_status"`
	ActionTaken  CheckAction  `json:"action_taken"`
	Details      CheckDetails `json:"details"`
	RetryRunID   string       `json:"retry_run_id,omitempty"`
	IsRetryCheck bool         `json:"is_retry_check"`
	RetryCheckAt *time.Time   `json:"retry_check_at,omitempty"`
	CheckedAt    time.Time    `json:"checked_at"`
}
