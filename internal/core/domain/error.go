package domain

import "time"

// ErrorCategory is the failure taxonomy shared by the whole engine. Nothing
// outside the classifier assigns categories; everything downstream consumes
// them.
type ErrorCategory string

const (
	CategoryRateLimit   ErrorCategory = "rate_limit"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryNetwork     ErrorCategory = "network"
	CategoryAuth        ErrorCategory = "auth"
	CategoryResource    ErrorCategory = "resource"
	CategoryValidation  ErrorCategory = "validation"
	CategoryExternalAPI ErrorCategory = "external_api"
	CategoryDatabase    ErrorCategory = "database"
	CategoryUnknown     ErrorCategory = "unknown"
)

// ErrorRecord is one structured failure captured during a run. Records are
// owned by their run and never persisted independently.
type ErrorRecord struct {
	Message   string        `json:"message"`
	Stack     string        `json:"stack,omitempty"`
	ItemID    string        `json:"item_id,omitempty"`
	Phase     string        `json:"phase,omitempty"`
	Category  ErrorCategory `json:"category,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
