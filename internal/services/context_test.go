package services_test

import (
	"context"
	"testing"

	"marketintel/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithScope(ctx, "proj#req")
	ctx = services.WithStage(ctx, "fetch")
	ctx = services.WithSequence(ctx, "fetch#00000000000000000001#abcd1234")
	ctx = services.WithCorrelationID(ctx, "req-123")

	if scope, ok := services.ScopeFromContext(ctx); !ok || scope != "proj#req" {
		t.Fatalf("unexpected scope: %v %v", scope, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "fetch" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if seq, ok := services.SequenceFromContext(ctx); !ok || seq == "" {
		t.Fatalf("unexpected sequence: %v %v", seq, ok)
	}
	if rid, ok := services.CorrelationIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected correlation id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
