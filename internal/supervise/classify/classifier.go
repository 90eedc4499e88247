// Package classify maps raw error messages onto the engine's failure taxonomy.
package classify

import (
	"regexp"

	"github.com/enrichops/overseer/internal/core/domain"
)

// rule pairs a pattern with its category. Rules are evaluated in order and
// the first match wins, so more specific patterns must come before generic
// ones (a 429 from an external API is rate-limit, not external-api).
type rule struct {
	pattern  *regexp.Regexp
	category domain.ErrorCategory
}

var rules = []rule{
	// Rate limiting, before generic HTTP errors
	{regexp.MustCompile(`(?i)(\b429\b|rate.?limit|too many requests|quota exceeded|plan limit)`), domain.CategoryRateLimit},

	// Auth, before generic 4xx/5xx
	{regexp.MustCompile(`(?i)(\b401\b|\b403\b|unauthorized|forbidden|invalid.{0,10}(api.?key|token|credential)|authentication|expired.{0,10}token)`), domain.CategoryAuth},

	// Timeouts
	{regexp.MustCompile(`(?i)(timed?.?out|deadline exceeded|context canceled|ETIMEDOUT)`), domain.CategoryTimeout},

	// Network transport
	{regexp.MustCompile(`(?i)(connection (refused|reset)|ECONNREFUSED|ECONNRESET|ENOTFOUND|EAI_AGAIN|no such host|network|dns|socket hang up|broken pipe)`), domain.CategoryNetwork},

	// Resource exhaustion
	{regexp.MustCompile(`(?i)(out of memory|OOM|heap|ENOSPC|disk full|resource exhausted|cannot allocate)`), domain.CategoryResource},

	// Validation / data shape
	{regexp.MustCompile(`(?i)(validation|invalid (input|payload|format|json)|schema|unprocessable|missing required|parse error|malformed)`), domain.CategoryValidation},

	// Database
	{regexp.MustCompile(`(?i)(database|postgres|\bsql\b|deadlock|duplicate key|constraint|relation .* does not exist|connection pool)`), domain.CategoryDatabase},

	// Generic upstream failures last among the specific buckets
	{regexp.MustCompile(`(?i)(\b50[0-4]\b|bad gateway|service unavailable|gateway timeout|internal server error|upstream|api error)`), domain.CategoryExternalAPI},
}

// Classify maps an error message to its category. Unmatched messages are
// CategoryUnknown. Pure function: same message, same category.
func Classify(message string) domain.ErrorCategory {
	for _, r := range rules {
		if r.pattern.MatchString(message) {
			return r.category
		}
	}
	return domain.CategoryUnknown
}

// ClassifyRecord classifies an error record, preferring an already-assigned
// category over re-deriving one from the message.
func ClassifyRecord(rec domain.ErrorRecord) domain.ErrorCategory {
	if rec.Category != "" {
		return rec.Category
	}
	return Classify(rec.Message)
}
