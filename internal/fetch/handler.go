package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"marketintel/internal/blobstore"
	"marketintel/internal/logging"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
	"marketintel/internal/services"
	"marketintel/internal/stage"
)

// Handler fetches and summarizes one URL.
type Handler struct {
	summarizer services.Summarizer
	blobs      blobstore.Store
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler creates the fetch stage handler. blobs may be nil.
func NewHandler(summarizer services.Summarizer, blobs blobstore.Store, logger *slog.Logger) *Handler {
	return &Handler{
		summarizer: summarizer,
		blobs:      blobs,
		logger:     logging.NewComponentLogger(logger, "fetch"),
		now:        time.Now,
	}
}

// Execute summarizes the item's URL. When the provider fails the error text
// is written to the payload before returning, so the failed or retrying item
// shows why.
func (h *Handler) Execute(ctx context.Context, item *queue.Item) error {
	if h.summarizer == nil {
		return services.Wrap(services.ErrConfiguration, string(queue.StageFetch), "summarize", "no fetch provider configured", nil)
	}
	doc, err := stage.Decode[payload.Fetch](item)
	if err != nil {
		return err
	}
	logger := logging.WithContext(ctx, h.logger)

	summary, err := h.summarizer.Summarize(ctx, services.SummaryRequest{
		URL:      doc.URL.URL,
		Title:    doc.URL.Title,
		Snippet:  doc.URL.Snippet,
		Keywords: doc.Keywords,
		Prompt:   doc.UserPrompt,
	})
	if err != nil {
		doc.Error = err.Error()
		if storeErr := stage.Store(item, doc); storeErr != nil {
			logger.Debug("fetch error not recorded in payload", logging.Error(storeErr))
		}
		return services.Wrap(services.ErrTransient, string(queue.StageFetch), "summarize", doc.URL.URL, err)
	}

	summarizedAt := h.now().UTC()
	doc.Summary = &summary
	doc.SummarizedAt = &summarizedAt
	doc.Error = ""
	doc.ContentLocator = h.archive(ctx, logger, item, summary)
	if err := stage.Store(item, doc); err != nil {
		return err
	}

	logger.Info("page summarized",
		logging.String(logging.FieldEventType, "page_summarized"),
		logging.String("url", doc.URL.URL),
		logging.String("category", summary.Category),
		logging.Int("summary_chars", len(summary.Response)),
		logging.String("model", summary.Model),
	)
	return nil
}

func (h *Handler) archive(ctx context.Context, logger *slog.Logger, item *queue.Item, summary payload.Summary) string {
	if h.blobs == nil {
		return ""
	}
	data, err := json.Marshal(summary)
	if err == nil {
		var locator string
		locator, err = h.blobs.Put(ctx, item.ScopeKey, blobstore.PageContent, item.SequenceKey, data)
		if err == nil {
			return locator
		}
	}
	logging.WarnWithContext(logger, "page content not archived", "blob_write_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "content stays in the queue payload only"),
		logging.String(logging.FieldErrorHint, "check the blob store directory"),
	)
	return ""
}

// PrepareDownstream gives each analysis stage the same copy of the fetch
// document, tagged with its kind.
func (h *Handler) PrepareDownstream(_ context.Context, item *queue.Item, next queue.Stage) ([]stage.Successor, error) {
	switch next {
	case queue.StageRelevance, queue.StageInsight, queue.StageImplication:
	default:
		return nil, nil
	}
	doc, err := stage.Decode[payload.Fetch](item)
	if err != nil {
		return nil, err
	}
	successor, err := stage.Encode(payload.AnalysisFromFetch(doc, string(next)), map[string]string{
		"analysis_kind": string(next),
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s document: %w", next, err)
	}
	return []stage.Successor{successor}, nil
}

// HealthCheck verifies the fetch provider when it supports a probe.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	name := string(queue.StageFetch)
	if h.summarizer == nil {
		return stage.Unhealthy(name, "no fetch provider configured")
	}
	if err := services.CheckHealth(ctx, h.summarizer); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}
