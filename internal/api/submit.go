package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketintel/internal/intake"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
	"marketintel/internal/services"
)

// Enqueuer is the part of the queue store that ingress needs.
type Enqueuer interface {
	Put(ctx context.Context, item *queue.Item) (*queue.Item, error)
}

// Submit enqueues exactly one root intake item for req. Defaults are applied
// and a request id is generated when missing. Request content is validated by
// the intake stage, so a malformed keyword or source list is still accepted
// here and fails later where the status surface reports it.
func Submit(ctx context.Context, store Enqueuer, req payload.Request) (SubmitResult, error) {
	if store == nil {
		return SubmitResult{}, services.Wrap(services.ErrConfiguration, "ingress", "submit", "queue store unavailable", nil)
	}
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.ProjectID == "" {
		return SubmitResult{}, services.Wrap(services.ErrValidation, "ingress", "submit", "project_id is required", nil)
	}
	if strings.Contains(req.ProjectID, "#") || strings.Contains(req.RequestID, "#") {
		return SubmitResult{}, services.Wrap(services.ErrValidation, "ingress", "submit", "ids must not contain '#'", nil)
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	intake.ApplyDefaults(&req)

	doc, err := payload.Encode(payload.Intake{Request: req})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("encode request: %w", err)
	}
	stored, err := store.Put(ctx, &queue.Item{
		ScopeKey:    queue.ScopeKey(req.ProjectID, req.RequestID),
		Stage:       queue.StageIntake,
		Status:      queue.StatusPending,
		Priority:    queue.Priority(req.Priority),
		Strategy:    queue.Strategy(req.Strategy),
		PayloadJSON: doc,
		Metadata: map[string]string{
			"project_id": req.ProjectID,
			"request_id": req.RequestID,
		},
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("enqueue intake: %w", err)
	}
	return SubmitResult{
		ScopeKey:    stored.ScopeKey,
		SequenceKey: stored.SequenceKey,
		AcceptedAt:  formatTime(stored.CreatedAt),
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
