package testsupport

import (
	"context"
	"fmt"
	"sync"

	"marketintel/internal/payload"
	"marketintel/internal/services"
)

// SearcherFunc adapts a function to services.Searcher.
type SearcherFunc func(ctx context.Context, req services.SearchRequest) ([]payload.Candidate, error)

func (f SearcherFunc) Search(ctx context.Context, req services.SearchRequest) ([]payload.Candidate, error) {
	return f(ctx, req)
}

// SummarizerFunc adapts a function to services.Summarizer.
type SummarizerFunc func(ctx context.Context, req services.SummaryRequest) (payload.Summary, error)

func (f SummarizerFunc) Summarize(ctx context.Context, req services.SummaryRequest) (payload.Summary, error) {
	return f(ctx, req)
}

// AnalyzerFunc adapts a function to services.Analyzer.
type AnalyzerFunc func(ctx context.Context, req services.AnalyzeRequest) (services.AnalyzeResponse, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, req services.AnalyzeRequest) (services.AnalyzeResponse, error) {
	return f(ctx, req)
}

// FixedSearcher returns n candidates per call, scored so that lower indexes
// rank higher.
func FixedSearcher(n int) services.Searcher {
	return SearcherFunc(func(_ context.Context, req services.SearchRequest) ([]payload.Candidate, error) {
		out := make([]payload.Candidate, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, payload.Candidate{
				URL:            fmt.Sprintf("https://%s/article-%02d", req.Source.URL, i),
				Title:          fmt.Sprintf("%s article %d", req.Source.Name, i),
				Source:         req.Source.Name,
				RelevanceScore: 1 - float64(i)*0.01,
				Position:       i + 1,
			})
		}
		return out, nil
	})
}

// CallCounter records how many times a fake was invoked.
type CallCounter struct {
	mu    sync.Mutex
	calls int
}

// Inc increments and returns the call count.
func (c *CallCounter) Inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.calls
}

// Calls returns the current count.
func (c *CallCounter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// FailingAnalyzer fails every call with err and counts invocations.
func FailingAnalyzer(err error, counter *CallCounter) services.Analyzer {
	return AnalyzerFunc(func(context.Context, services.AnalyzeRequest) (services.AnalyzeResponse, error) {
		if counter != nil {
			counter.Inc()
		}
		return services.AnalyzeResponse{}, err
	})
}
