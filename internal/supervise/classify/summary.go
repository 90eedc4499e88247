package classify

import "github.com/enrichops/overseer/internal/core/domain"

// Summary is the category distribution of a run's errors.
type Summary struct {
	ByCategory         map[domain.ErrorCategory]int
	DominantCategory   domain.ErrorCategory
	DominantPercentage float64
}

// Summarize counts errors per category and picks the dominant one. Ties are
// broken by first-seen order while iterating the input slice: the category
// that reached the winning count first wins. That makes the tie-break
// deterministic and testable rather than map-iteration luck.
func Summarize(errs []domain.ErrorRecord) Summary {
	s := Summary{ByCategory: make(map[domain.ErrorCategory]int)}
	if len(errs) == 0 {
		return s
	}

	var firstSeen []domain.ErrorCategory
	for _, e := range errs {
		cat := ClassifyRecord(e)
		if _, ok := s.ByCategory[cat]; !ok {
			firstSeen = append(firstSeen, cat)
		}
		s.ByCategory[cat]++
	}

	best := -1
	for _, cat := range firstSeen {
		if s.ByCategory[cat] > best {
			best = s.ByCategory[cat]
			s.DominantCategory = cat
		}
	}
	s.DominantPercentage = float64(best) / float64(len(errs)) * 100

	return s
}
