package check

import (
	"strings"
	"unicode/utf8"

	"github.com/enrichops/overseer/internal/core/domain"
	"github.com/enrichops/overseer/internal/supervise/classify"
)

const maxMessageLen = 200

// CondenseErrors trims the last n error records down to what alerting needs:
// truncated message, category tag, first meaningful stack line, timestamp.
func CondenseErrors(errs []domain.ErrorRecord, n int) []domain.CondensedError {
	if len(errs) == 0 {
		return nil
	}
	start := len(errs) - n
	if start < 0 {
		start = 0
	}

	out := make([]domain.CondensedError, 0, len(errs)-start)
	for _, e := range errs[start:] {
		msg := truncate(e.Message, maxMessageLen)
		out = append(out, domain.CondensedError{
			Message:   msg,
			Category:  classify.ClassifyRecord(e),
			StackLine: firstStackLine(e.Stack),
			Timestamp: e.Timestamp,
		})
	}
	return out
}

// truncate cuts s to at most max bytes on a rune boundary, so a multi-byte
// character is never split into an invalid string.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// firstStackLine returns the first non-empty stack line that looks like a
// frame rather than the repeated error message.
func firstStackLine(stack string) string {
	for _, line := range strings.Split(stack, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "error") {
			continue
		}
		return line
	}
	return ""
}
