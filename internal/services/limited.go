package services

import (
	"context"

	"golang.org/x/time/rate"

	"marketintel/internal/payload"
)

// NewLimiter returns a token bucket allowing perSecond calls with the given
// burst. A non-positive rate disables limiting.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// LimitSearcher waits on limiter before each search.
func LimitSearcher(next Searcher, limiter *rate.Limiter) Searcher {
	if limiter == nil {
		return next
	}
	return limitedSearcher{next: next, limiter: limiter}
}

// LimitSummarizer waits on limiter before each summary.
func LimitSummarizer(next Summarizer, limiter *rate.Limiter) Summarizer {
	if limiter == nil {
		return next
	}
	return limitedSummarizer{next: next, limiter: limiter}
}

// LimitAnalyzer waits on limiter before each analysis call.
func LimitAnalyzer(next Analyzer, limiter *rate.Limiter) Analyzer {
	if limiter == nil {
		return next
	}
	return limitedAnalyzer{next: next, limiter: limiter}
}

type limitedSearcher struct {
	next    Searcher
	limiter *rate.Limiter
}

func (l limitedSearcher) Search(ctx context.Context, req SearchRequest) ([]payload.Candidate, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, Wrap(ErrTimeout, "", "rate limit", "wait for search slot", err)
	}
	return l.next.Search(ctx, req)
}

type limitedSummarizer struct {
	next    Summarizer
	limiter *rate.Limiter
}

func (l limitedSummarizer) Summarize(ctx context.Context, req SummaryRequest) (payload.Summary, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return payload.Summary{}, Wrap(ErrTimeout, "", "rate limit", "wait for fetch slot", err)
	}
	return l.next.Summarize(ctx, req)
}

type limitedAnalyzer struct {
	next    Analyzer
	limiter *rate.Limiter
}

func (l limitedAnalyzer) Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeResponse, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return AnalyzeResponse{}, Wrap(ErrTimeout, "", "rate limit", "wait for analysis slot", err)
	}
	return l.next.Analyze(ctx, req)
}

// HealthCheck forwards to the wrapped provider when it supports health checks.
func (l limitedSearcher) HealthCheck(ctx context.Context) error { return checkHealth(ctx, l.next) }

// HealthCheck forwards to the wrapped provider when it supports health checks.
func (l limitedSummarizer) HealthCheck(ctx context.Context) error { return checkHealth(ctx, l.next) }

// HealthCheck forwards to the wrapped provider when it supports health checks.
func (l limitedAnalyzer) HealthCheck(ctx context.Context) error { return checkHealth(ctx, l.next) }

func checkHealth(ctx context.Context, provider any) error {
	if checker, ok := provider.(HealthChecker); ok {
		return checker.HealthCheck(ctx)
	}
	return nil
}

// CheckHealth runs the provider's health check when it implements one.
func CheckHealth(ctx context.Context, provider any) error {
	return checkHealth(ctx, provider)
}
