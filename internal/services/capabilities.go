package services

import (
	"context"

	"marketintel/internal/payload"
)

// SearchRequest asks a provider for candidate URLs from one source.
type SearchRequest struct {
	Keywords   []string
	Queries    []string
	Source     payload.Source
	MaxResults int
}

// Searcher runs a web search for one source.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]payload.Candidate, error)
}

// SummaryRequest asks a provider to fetch and digest one URL.
type SummaryRequest struct {
	URL      string
	Title    string
	Snippet  string
	Keywords []string
	Prompt   string
}

// Summarizer fetches a page and produces a summary of it.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (payload.Summary, error)
}

// AnalyzeRequest is a single prompt for an analysis model.
type AnalyzeRequest struct {
	Kind         string
	SystemPrompt string
	Prompt       string
}

// AnalyzeResponse is the model's answer. Callers inspect only Success and
// Content; Metadata carries provider details such as the model name.
type AnalyzeResponse struct {
	Success  bool
	Content  string
	Metadata map[string]string
}

// Analyzer runs a prompt against an analysis model.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeResponse, error)
}

// HealthChecker is implemented by providers that can verify their credentials.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
