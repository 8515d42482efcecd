package intake

import (
	"strings"

	"marketintel/internal/payload"
)

// MaxQueriesPerSource caps the search queries generated for one source.
const MaxQueriesPerSource = 8

// BuildQueries derives the search queries for one source: every keyword,
// then "<kw> site:<url>" for the first three keywords, then "<kw> <name>"
// for the first two. Duplicates keep their first position.
func BuildQueries(keywords []string, source payload.Source) []string {
	var candidates []string
	for _, kw := range keywords {
		candidates = append(candidates, kw)
	}
	if url := strings.TrimSpace(source.URL); url != "" {
		for _, kw := range firstN(keywords, 3) {
			candidates = append(candidates, kw+" site:"+url)
		}
	}
	if name := strings.TrimSpace(source.Name); name != "" {
		for _, kw := range firstN(keywords, 2) {
			candidates = append(candidates, kw+" "+name)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, MaxQueriesPerSource)
	for _, query := range candidates {
		query = strings.TrimSpace(query)
		if query == "" {
			continue
		}
		if _, ok := seen[query]; ok {
			continue
		}
		seen[query] = struct{}{}
		out = append(out, query)
		if len(out) == MaxQueriesPerSource {
			break
		}
	}
	return out
}

func firstN(values []string, n int) []string {
	if len(values) < n {
		return values
	}
	return values[:n]
}
