package api

import (
	"context"
	"errors"
	"slices"
	"strings"

	"marketintel/internal/metrics"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
)

// ErrScopeNotFound is returned when a scope has no items.
var ErrScopeNotFound = errors.New("scope not found")

// QueueReader abstracts the queue persistence interactions behind the API.
type QueueReader interface {
	Enqueuer
	ListScope(ctx context.Context, scope string) ([]*queue.Item, error)
	List(ctx context.Context, filter queue.ListFilter) ([]*queue.Item, error)
	ScopeStats(ctx context.Context, scope string) (map[queue.Stage]queue.StageCounts, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
}

// QueueService exposes ingress and read operations returning API DTOs.
type QueueService struct {
	store   QueueReader
	metrics *metrics.Metrics
}

// NewQueueService constructs a QueueService around the provided store. m may
// be nil.
func NewQueueService(store QueueReader, m *metrics.Metrics) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store, metrics: m}
}

// Submit enqueues a request and records the outcome.
func (s *QueueService) Submit(ctx context.Context, req payload.Request) (SubmitResult, error) {
	if s == nil {
		return Submit(ctx, nil, req)
	}
	result, err := Submit(ctx, s.store, req)
	s.metrics.Submitted(err)
	return result, err
}

// Report returns per-stage counts for scope.
func (s *QueueService) Report(ctx context.Context, scope string) (ScopeReport, error) {
	scope = strings.TrimSpace(scope)
	if s == nil || scope == "" {
		return ScopeReport{}, ErrScopeNotFound
	}
	counts, err := s.store.ScopeStats(ctx, scope)
	if err != nil {
		return ScopeReport{}, err
	}
	report := BuildScopeReport(scope, counts)
	if report.Total == 0 {
		return ScopeReport{}, ErrScopeNotFound
	}
	return report, nil
}

// Tree returns every item of scope ordered by stage, then enqueue order.
func (s *QueueService) Tree(ctx context.Context, scope string) ([]QueueItem, error) {
	scope = strings.TrimSpace(scope)
	if s == nil || scope == "" {
		return nil, ErrScopeNotFound
	}
	items, err := s.store.ListScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrScopeNotFound
	}
	order := make(map[queue.Stage]int)
	for i, st := range queue.AllStages() {
		order[st] = i
	}
	slices.SortStableFunc(items, func(a, b *queue.Item) int {
		if d := order[a.Stage] - order[b.Stage]; d != 0 {
			return d
		}
		return strings.Compare(a.SequenceKey, b.SequenceKey)
	})
	return FromQueueItems(items), nil
}

// List returns items matching filter.
func (s *QueueService) List(ctx context.Context, filter queue.ListFilter) ([]QueueItem, error) {
	if s == nil {
		return nil, nil
	}
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromQueueItems(items), nil
}

// Stats returns queue summary counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// BuildScopeReport folds stage counts into a report. Done is true only when
// the scope has items and every one of them is terminal.
func BuildScopeReport(scope string, counts map[queue.Stage]queue.StageCounts) ScopeReport {
	project, request, _ := queue.SplitScopeKey(scope)
	report := ScopeReport{
		ScopeKey:  scope,
		ProjectID: project,
		RequestID: request,
		Stages:    make(map[string]map[string]int, len(counts)),
		Done:      true,
	}
	for st, byStatus := range counts {
		report.Stages[string(st)] = MergeQueueStats(byStatus)
		report.Total += byStatus.Total()
		report.Failed += byStatus[queue.StatusFailed]
		if !byStatus.Terminal() {
			report.Done = false
		}
	}
	if report.Total == 0 {
		report.Done = false
	}
	return report
}
