package daemonrun

import (
	"context"
	"fmt"
	"log/slog"

	"marketintel/internal/analysis"
	"marketintel/internal/blobstore"
	"marketintel/internal/config"
	"marketintel/internal/fetch"
	"marketintel/internal/intake"
	"marketintel/internal/queue"
	"marketintel/internal/search"
	"marketintel/internal/services"
	"marketintel/internal/services/claude"
	"marketintel/internal/services/gemini"
	"marketintel/internal/services/llm"
	"marketintel/internal/services/serpapi"
	"marketintel/internal/services/static"
	"marketintel/internal/services/webfetch"
	"marketintel/internal/workflow"
)

// Capabilities bundles the provider implementations selected by config.
type Capabilities struct {
	Searcher   services.Searcher
	Summarizer services.Summarizer
	Analyzer   services.Analyzer
}

// BuildCapabilities constructs the configured providers. Remote providers are
// wrapped in a token-bucket limiter sized from their requests_per_second.
func BuildCapabilities(ctx context.Context, cfg *config.Config) (Capabilities, error) {
	if cfg == nil {
		return Capabilities{}, fmt.Errorf("config is required")
	}
	var caps Capabilities

	switch cfg.Analysis.Provider {
	case config.ProviderClaude:
		client := claude.NewClient(claude.Config{
			APIKey:         cfg.Anthropic.APIKey,
			Model:          cfg.Anthropic.Model,
			MaxTokens:      cfg.Anthropic.MaxTokens,
			TimeoutSeconds: cfg.Anthropic.TimeoutSeconds,
		})
		caps.Analyzer = services.LimitAnalyzer(client, services.NewLimiter(cfg.Anthropic.RequestsPerSecond, 1))
	case config.ProviderLLM:
		client := llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Referer:        cfg.LLM.Referer,
			Title:          cfg.LLM.Title,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		})
		caps.Analyzer = services.LimitAnalyzer(client, services.NewLimiter(cfg.LLM.RequestsPerSecond, 1))
	default:
		caps.Analyzer = static.Analyzer{}
	}

	switch cfg.Search.Provider {
	case config.ProviderGemini:
		searcher, err := gemini.NewSearcher(ctx, gemini.Config{
			APIKey:         cfg.Gemini.APIKey,
			Model:          cfg.Gemini.Model,
			TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
		})
		if err != nil {
			return Capabilities{}, fmt.Errorf("init gemini searcher: %w", err)
		}
		caps.Searcher = services.LimitSearcher(searcher, services.NewLimiter(cfg.Gemini.RequestsPerSecond, 1))
	case config.ProviderSerpAPI:
		caps.Searcher = serpapi.NewClient(serpapi.Config{
			APIKey:            cfg.SerpAPI.APIKey,
			BaseURL:           cfg.SerpAPI.BaseURL,
			Engine:            cfg.SerpAPI.Engine,
			RequestsPerSecond: cfg.SerpAPI.RequestsPerSecond,
			TimeoutSeconds:    cfg.SerpAPI.TimeoutSeconds,
		})
	default:
		caps.Searcher = static.Searcher{}
	}

	switch cfg.Fetch.Provider {
	case config.ProviderWeb:
		var opts []webfetch.Option
		if cfg.Fetch.Summarize {
			opts = append(opts, webfetch.WithAnalyzer(caps.Analyzer))
		}
		fetcher := webfetch.New(webfetch.Config{
			TimeoutSeconds:  cfg.Fetch.TimeoutSeconds,
			UserAgent:       cfg.Fetch.UserAgent,
			MaxContentChars: cfg.Fetch.MaxContentChars,
		}, opts...)
		caps.Summarizer = services.LimitSummarizer(fetcher, services.NewLimiter(cfg.Fetch.RequestsPerSecond, 1))
	default:
		caps.Summarizer = static.Summarizer{}
	}

	return caps, nil
}

// BuildStages wires one handler per pipeline stage.
func BuildStages(cfg *config.Config, caps Capabilities, blobs blobstore.Store, logger *slog.Logger) workflow.StageSet {
	set := workflow.StageSet{
		queue.StageIntake: intake.NewHandler(cfg, logger),
		queue.StageSearch: search.NewHandler(cfg, caps.Searcher, blobs, logger),
		queue.StageFetch:  fetch.NewHandler(caps.Summarizer, blobs, logger),
	}
	for kind, handler := range analysis.NewHandlers(cfg, caps.Analyzer, blobs, logger) {
		set[kind] = handler
	}
	return set
}
