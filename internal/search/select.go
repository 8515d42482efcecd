package search

import (
	"sort"
	"strings"

	"marketintel/internal/payload"
)

// SelectURLs returns the best candidates to fetch: empty URLs are dropped,
// the rest are ordered by relevance score descending with ties kept in
// original order, and the first limit are returned. The input is not modified.
func SelectURLs(candidates []payload.Candidate, limit int) []payload.Candidate {
	if limit <= 0 {
		return nil
	}
	ranked := make([]payload.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate.URL) == "" {
			continue
		}
		ranked = append(ranked, candidate)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
