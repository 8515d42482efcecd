package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"marketintel/internal/config"
	"marketintel/internal/logging"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
	"marketintel/internal/services"
	"marketintel/internal/stage"
)

// Handler validates root items and fans them out to search.
type Handler struct {
	urlCap int
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates the intake stage handler.
func NewHandler(cfg *config.Config, logger *slog.Logger) *Handler {
	urlCap := config.Default().Search.MaxURLsPerSearch
	if cfg != nil {
		urlCap = cfg.Search.MaxURLsPerSearch
	}
	return &Handler{
		urlCap: urlCap,
		logger: logging.NewComponentLogger(logger, "intake"),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (h *Handler) SetClock(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// Execute validates the submitted request and records the plan. An invalid
// request is a permanent failure; the validation outcome is still written to
// the payload so operators can read the reasons.
func (h *Handler) Execute(ctx context.Context, item *queue.Item) error {
	doc, err := stage.Decode[payload.Intake](item)
	if err != nil {
		return err
	}
	now := h.now()
	validation := Validate(doc.Request, now)
	doc.Validation = &validation
	logger := logging.WithContext(ctx, h.logger)

	if !validation.Valid {
		if err := stage.Store(item, doc); err != nil {
			return err
		}
		logger.Warn("request rejected",
			logging.String(logging.FieldEventType, "request_rejected"),
			logging.String("errors", strings.Join(validation.Errors, "; ")),
			logging.String(logging.FieldImpact, "no search items will be created"),
		)
		return services.Wrap(services.ErrValidation, string(queue.StageIntake), "validate request",
			strings.Join(validation.Errors, "; "), nil)
	}

	plan := BuildPlan(doc.Request, h.urlCap, now)
	accepted := now.UTC()
	doc.Plan = &plan
	doc.AcceptedAt = &accepted
	if err := stage.Store(item, doc); err != nil {
		return err
	}

	for _, warning := range validation.Warnings {
		logging.WarnWithContext(logger, "request accepted with warning", "request_warning",
			logging.String("warning", warning),
			logging.String(logging.FieldImpact, "processing may take longer than usual"),
			logging.String(logging.FieldErrorHint, "split the request into smaller keyword sets"),
		)
	}
	logger.Info("request accepted",
		logging.String(logging.FieldEventType, "request_accepted"),
		logging.Int("keywords", len(doc.Request.Keywords)),
		logging.Int("sources", len(doc.Request.Sources)),
		logging.Int("estimated_minutes", plan.EstimatedDurationMinutes),
	)
	return nil
}

// PrepareDownstream returns one search document per source.
func (h *Handler) PrepareDownstream(_ context.Context, item *queue.Item, next queue.Stage) ([]stage.Successor, error) {
	if next != queue.StageSearch {
		return nil, nil
	}
	doc, err := stage.Decode[payload.Intake](item)
	if err != nil {
		return nil, err
	}
	out := make([]stage.Successor, 0, len(doc.Request.Sources))
	for i, source := range doc.Request.Sources {
		search := payload.SearchFromIntake(doc, i, BuildQueries(doc.Request.Keywords, source))
		successor, err := stage.Encode(search, map[string]string{
			"source_name":  source.Name,
			"source_index": strconv.Itoa(i),
		})
		if err != nil {
			return out, fmt.Errorf("encode search for source %d: %w", i, err)
		}
		out = append(out, successor)
	}
	return out, nil
}

// HealthCheck reports readiness. Intake has no external dependencies.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(string(queue.StageIntake))
}
