package services

import "context"

type contextKey string

const (
	scopeKey         contextKey = "scope_key"
	stageKey         contextKey = "stage"
	sequenceKey      contextKey = "sequence_key"
	correlationIDKey contextKey = "correlation_id"
)

// WithScope annotates context with the submission scope key.
func WithScope(ctx context.Context, scope string) context.Context {
	if scope == "" {
		return ctx
	}
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFromContext returns the scope key if present.
func ScopeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(scopeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the workflow stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithSequence annotates context with the work item's sequence key.
func WithSequence(ctx context.Context, seq string) context.Context {
	if seq == "" {
		return ctx
	}
	return context.WithValue(ctx, sequenceKey, seq)
}

// SequenceFromContext returns the sequence key if present.
func SequenceFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sequenceKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCorrelationID annotates context with a correlation identifier.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation identifier if present.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(correlationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
