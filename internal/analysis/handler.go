package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
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

// Handler runs one analysis kind.
type Handler struct {
	kind       queue.Stage
	analyzer   services.Analyzer
	blobs      blobstore.Store
	promptMode string
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler creates the handler for one analysis stage. blobs may be nil.
func NewHandler(kind queue.Stage, cfg *config.Config, analyzer services.Analyzer, blobs blobstore.Store, logger *slog.Logger) *Handler {
	return &Handler{
		kind:       kind,
		analyzer:   analyzer,
		blobs:      blobs,
		promptMode: cfg.Analysis.PromptMode,
		logger:     logging.NewComponentLogger(logger, string(kind)),
		now:        time.Now,
	}
}

// NewHandlers returns one handler per analysis stage sharing the analyzer.
func NewHandlers(cfg *config.Config, analyzer services.Analyzer, blobs blobstore.Store, logger *slog.Logger) map[queue.Stage]*Handler {
	out := make(map[queue.Stage]*Handler, 3)
	for _, kind := range queue.AnalysisStages() {
		out[kind] = NewHandler(kind, cfg, analyzer, blobs, logger)
	}
	return out
}

// Kind returns the analysis stage this handler serves.
func (h *Handler) Kind() queue.Stage {
	return h.kind
}

// Execute prompts the analyzer and stores the categorized result. A response
// without content is retried like any provider failure.
func (h *Handler) Execute(ctx context.Context, item *queue.Item) error {
	stageName := string(h.kind)
	if h.analyzer == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "analyze", "no analysis provider configured", nil)
	}
	doc, err := stage.Decode[payload.Analysis](item)
	if err != nil {
		return err
	}
	if doc.Summary == nil || strings.TrimSpace(doc.Summary.Response) == "" {
		return services.Wrap(services.ErrValidation, stageName, "analyze", "document carries no fetch summary", nil)
	}
	logger := logging.WithContext(ctx, h.logger)

	rendered, err := prompts.Render(stageName, h.promptMode, prompts.AnalysisData{
		URL:         doc.URL.URL,
		Title:       firstNonEmpty(doc.Summary.Title, doc.URL.Title),
		Source:      doc.Source.Name,
		Keywords:    doc.Keywords,
		UserPrompt:  doc.UserPrompt,
		Focus:       doc.AnalysisPrompt,
		Summary:     doc.Summary.Response,
		PublishDate: doc.Summary.PublishDate,
	})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "render prompt", "", err)
	}

	resp, err := h.analyzer.Analyze(ctx, services.AnalyzeRequest{
		Kind:         stageName,
		SystemPrompt: rendered.System,
		Prompt:       rendered.Prompt,
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "analyze", doc.URL.URL, err)
	}
	if !resp.Success || strings.TrimSpace(resp.Content) == "" {
		return services.Wrap(services.ErrTransient, stageName, "analyze", "analyzer returned no content", nil)
	}

	metadata := make(map[string]string, len(resp.Metadata)+1)
	for k, v := range resp.Metadata {
		metadata[k] = v
	}
	if h.kind == queue.StageRelevance {
		if score, ok := RelevanceScore(resp.Content); ok {
			metadata["relevance_score"] = strconv.Itoa(score)
		}
	}
	result := payload.AnalysisResult{
		Content:  resp.Content,
		Category: Category(h.kind, resp.Content),
		Confidence: Confidence(ConfidenceInput{
			Content:  resp.Content,
			Success:  resp.Success,
			Model:    resp.Metadata["model"],
			HasTitle: doc.URL.Title != "" || doc.Summary.Title != "",
			HasURL:   doc.URL.URL != "",
		}),
		Metadata:   metadata,
		AnalyzedAt: h.now().UTC(),
	}
	doc.Result = &result
	doc.AnalysisType = stageName
	doc.ResultLocator = h.archive(ctx, logger, item, result)
	if err := stage.Store(item, doc); err != nil {
		return err
	}

	logger.Info("analysis recorded",
		logging.String(logging.FieldEventType, "analysis_recorded"),
		logging.String("url", doc.URL.URL),
		logging.String("category", result.Category),
		logging.Float64("confidence", result.Confidence),
	)
	return nil
}

func (h *Handler) archive(ctx context.Context, logger *slog.Logger, item *queue.Item, result payload.AnalysisResult) string {
	if h.blobs == nil {
		return ""
	}
	data, err := json.Marshal(result)
	if err == nil {
		var locator string
		locator, err = h.blobs.Put(ctx, item.ScopeKey, blobstore.Processed(string(h.kind)), item.SequenceKey, data)
		if err == nil {
			return locator
		}
	}
	logging.WarnWithContext(logger, fmt.Sprintf("%s result not archived", h.kind), "blob_write_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "result stays in the queue payload only"),
		logging.String(logging.FieldErrorHint, "check the blob store directory"),
	)
	return ""
}

// PrepareDownstream returns nothing; analysis stages are terminal.
func (h *Handler) PrepareDownstream(context.Context, *queue.Item, queue.Stage) ([]stage.Successor, error) {
	return nil, nil
}

// HealthCheck verifies the analysis provider when it supports a probe.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	name := string(h.kind)
	if h.analyzer == nil {
		return stage.Unhealthy(name, "no analysis provider configured")
	}
	if err := services.CheckHealth(ctx, h.analyzer); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
