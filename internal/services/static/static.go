// Package static provides deterministic offline implementations of the search,
// summary and analysis capabilities. It backs the default configuration so a
// fresh install can run the whole pipeline without API keys, and it keeps
// demos and end-to-end tests reproducible.
package static

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"marketintel/internal/payload"
	"marketintel/internal/services"
)

// Model is reported in the metadata of every static response.
const Model = "static"

// Searcher fabricates one candidate per query under the source URL.
type Searcher struct{}

// Search implements services.Searcher.
func (Searcher) Search(ctx context.Context, req services.SearchRequest) ([]payload.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := strings.TrimRight(strings.TrimSpace(req.Source.URL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrValidation, "search", "static", "source url is empty", nil)
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = len(req.Queries)
	}
	seen := make(map[string]struct{}, len(req.Queries))
	results := make([]payload.Candidate, 0, min(limit, len(req.Queries)))
	for _, query := range req.Queries {
		if len(results) >= limit {
			break
		}
		slug := slugify(stripOperators(query))
		if slug == "" {
			continue
		}
		link := base + "/" + url.PathEscape(slug)
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		position := len(results) + 1
		results = append(results, payload.Candidate{
			URL:            link,
			Title:          fmt.Sprintf("%s: %s", req.Source.Name, stripOperators(query)),
			Snippet:        fmt.Sprintf("Coverage of %s from %s.", stripOperators(query), req.Source.Name),
			Source:         req.Source.Name,
			RelevanceScore: 1 / float64(position),
			Position:       position,
		})
	}
	return results, nil
}

// Summarizer composes a summary from the request fields without network access.
type Summarizer struct{}

// Summarize implements services.Summarizer.
func (Summarizer) Summarize(ctx context.Context, req services.SummaryRequest) (payload.Summary, error) {
	if err := ctx.Err(); err != nil {
		return payload.Summary{}, err
	}
	if strings.TrimSpace(req.URL) == "" {
		return payload.Summary{}, services.Wrap(services.ErrValidation, "fetch", "static", "url is empty", nil)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.URL
	}
	keywords := strings.Join(req.Keywords, ", ")
	return payload.Summary{
		Title:       title,
		Response:    fmt.Sprintf("%s discusses %s. %s", title, keywords, strings.TrimSpace(req.Snippet)),
		MainContent: fmt.Sprintf("# %s\n\n%s\n\nKeywords: %s\n", title, strings.TrimSpace(req.Snippet), keywords),
		Category:    "general",
		Model:       Model,
	}, nil
}

// Analyzer echoes a fixed analysis for each kind.
type Analyzer struct{}

// Analyze implements services.Analyzer.
func (Analyzer) Analyze(ctx context.Context, req services.AnalyzeRequest) (services.AnalyzeResponse, error) {
	if err := ctx.Err(); err != nil {
		return services.AnalyzeResponse{}, err
	}
	var content string
	switch req.Kind {
	case "relevance":
		content = "Relevance: this source is relevant to the tracked keywords and covers current market activity."
	case "insight":
		content = "Insight: the coverage points to growing competition and new product launches in the segment."
	case "implication":
		content = "Implication: the business should monitor pricing pressure and evaluate partnership opportunities."
	default:
		content = "Summary: " + firstLine(req.Prompt)
	}
	return services.AnalyzeResponse{
		Success:  true,
		Content:  content,
		Metadata: map[string]string{"model": Model, "kind": req.Kind},
	}, nil
}

func stripOperators(query string) string {
	fields := strings.Fields(query)
	kept := fields[:0]
	for _, field := range fields {
		if strings.HasPrefix(field, "site:") {
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " ")
}

func slugify(value string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func firstLine(value string) string {
	value = strings.TrimSpace(value)
	if idx := strings.IndexByte(value, '\n'); idx >= 0 {
		return value[:idx]
	}
	return value
}
