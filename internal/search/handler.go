package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"marketintel/internal/blobstore"
	"marketintel/internal/config"
	"marketintel/internal/logging"
	"marketintel/internal/payload"
	"marketintel/internal/prompts"
	"marketintel/internal/queue"
	"marketintel/internal/services"
	"marketintel/internal/stage"
)

// Handler runs one source's search and fans the best results out to fetch.
type Handler struct {
	searcher   services.Searcher
	blobs      blobstore.Store
	urlCap     int
	maxResults int
	promptMode string
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler creates the search stage handler. blobs may be nil.
func NewHandler(cfg *config.Config, searcher services.Searcher, blobs blobstore.Store, logger *slog.Logger) *Handler {
	return &Handler{
		searcher:   searcher,
		blobs:      blobs,
		urlCap:     cfg.Search.MaxURLsPerSearch,
		maxResults: cfg.Search.MaxResults,
		promptMode: cfg.Analysis.PromptMode,
		logger:     logging.NewComponentLogger(logger, "search"),
		now:        time.Now,
	}
}

// Execute queries the provider and records the candidate list. An empty
// result list is a successful search with nothing to fetch.
func (h *Handler) Execute(ctx context.Context, item *queue.Item) error {
	if h.searcher == nil {
		return services.Wrap(services.ErrConfiguration, string(queue.StageSearch), "search", "no search provider configured", nil)
	}
	doc, err := stage.Decode[payload.Search](item)
	if err != nil {
		return err
	}
	logger := logging.WithContext(ctx, h.logger)

	results, err := h.searcher.Search(ctx, services.SearchRequest{
		Keywords:   doc.Keywords,
		Queries:    doc.Queries,
		Source:     doc.Source,
		MaxResults: h.maxResults,
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, string(queue.StageSearch), "search",
			fmt.Sprintf("source %q", doc.Source.Name), err)
	}
	if results == nil {
		results = []payload.Candidate{}
	}

	searchedAt := h.now().UTC()
	doc.Results = results
	doc.ResultCount = len(results)
	doc.SearchedAt = &searchedAt
	doc.ResultsLocator = h.archive(ctx, logger, item, results)
	if err := stage.Store(item, doc); err != nil {
		return err
	}

	logger.Info("search completed",
		logging.String(logging.FieldEventType, "search_completed"),
		logging.String("source", doc.Source.Name),
		logging.Int("queries", len(doc.Queries)),
		logging.Int("results", len(results)),
	)
	return nil
}

func (h *Handler) archive(ctx context.Context, logger *slog.Logger, item *queue.Item, results []payload.Candidate) string {
	if h.blobs == nil {
		return ""
	}
	data, err := json.Marshal(results)
	if err == nil {
		var locator string
		locator, err = h.blobs.Put(ctx, item.ScopeKey, blobstore.SearchResults, item.SequenceKey, data)
		if err == nil {
			return locator
		}
	}
	logging.WarnWithContext(logger, "search results not archived", "blob_write_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "results stay in the queue payload only"),
		logging.String(logging.FieldErrorHint, "check the blob store directory"),
	)
	return ""
}

// PrepareDownstream selects up to the configured cap of results and builds
// one fetch document per URL.
func (h *Handler) PrepareDownstream(ctx context.Context, item *queue.Item, next queue.Stage) ([]stage.Successor, error) {
	if next != queue.StageFetch {
		return nil, nil
	}
	doc, err := stage.Decode[payload.Search](item)
	if err != nil {
		return nil, err
	}
	selected := SelectURLs(doc.Results, h.urlCap)
	if dropped := len(doc.Results) - len(selected); dropped > 0 {
		logging.WithContext(ctx, h.logger).Info("url limit applied",
			logging.String(logging.FieldEventType, "url_limit_applied"),
			logging.Int("found", len(doc.Results)),
			logging.Int("selected", len(selected)),
			logging.Int("dropped", dropped),
		)
	}

	out := make([]stage.Successor, 0, len(selected))
	for i, candidate := range selected {
		rendered, err := prompts.Render(prompts.FamilyURL, h.promptMode, prompts.URLData{
			URL:      candidate.URL,
			Title:    candidate.Title,
			Snippet:  candidate.Snippet,
			Keywords: doc.Keywords,
			Focus:    doc.AnalysisPrompt,
		})
		if err != nil {
			return out, err
		}
		fetch := payload.FetchFromSearch(doc, candidate, i, len(selected), rendered.Prompt)
		successor, err := stage.Encode(fetch, map[string]string{
			"url":       candidate.URL,
			"url_index": strconv.Itoa(i + 1),
		})
		if err != nil {
			return out, fmt.Errorf("encode fetch for %s: %w", candidate.URL, err)
		}
		out = append(out, successor)
	}
	return out, nil
}

// HealthCheck verifies the search provider when it supports a probe.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	name := string(queue.StageSearch)
	if h.searcher == nil {
		return stage.Unhealthy(name, "no search provider configured")
	}
	if err := services.CheckHealth(ctx, h.searcher); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
