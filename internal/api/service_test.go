package api_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"marketintel/internal/api"
	"marketintel/internal/metrics"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
	"marketintel/internal/services"
	"marketintel/internal/stage"
	"marketintel/internal/testsupport"
	"marketintel/internal/workflow"
)

func TestSubmitCreatesSingleIntakeItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := metrics.New(prometheus.NewRegistry())
	svc := api.NewQueueService(store, m)

	req := testsupport.SampleRequest(2, 2)
	req.Priority = ""
	req.Strategy = ""
	result, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if result.ScopeKey != "proj#req" || result.SequenceKey == "" || result.AcceptedAt == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	items, err := store.ListScope(context.Background(), result.ScopeKey)
	if err != nil {
		t.Fatalf("ListScope: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected exactly one item, got %d", len(items))
	}
	item := items[0]
	if item.Stage != queue.StageIntake || item.Status != queue.StatusPending {
		t.Fatalf("unexpected root item: %s/%s", item.Stage, item.Status)
	}
	if item.Priority != queue.PriorityMedium || item.Strategy != queue.StrategyTable {
		t.Fatalf("expected defaults applied, got %s/%s", item.Priority, item.Strategy)
	}
	doc, err := payload.Decode[payload.Intake](item.PayloadJSON)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(doc.Request.Keywords) != 2 || doc.Request.ExtractionMode != "summary" {
		t.Fatalf("unexpected stored request: %+v", doc.Request)
	}
	if got := testutil.ToFloat64(m.SubmissionsTotal); got != 1 {
		t.Fatalf("expected one submission recorded, got %v", got)
	}
}

func TestSubmitGeneratesRequestID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.SampleRequest(1, 1)
	req.RequestID = ""
	result, err := api.Submit(context.Background(), store, req)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	project, request, ok := queue.SplitScopeKey(result.ScopeKey)
	if !ok || project != "proj" || request == "" {
		t.Fatalf("unexpected scope %q", result.ScopeKey)
	}
}

func TestSubmitRejectsMissingProject(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	req := testsupport.SampleRequest(1, 1)
	req.ProjectID = " "
	_, err := api.Submit(context.Background(), store, req)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 0 {
		t.Fatalf("expected nothing enqueued, got %v", stats)
	}
}

func TestReportAndTree(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := api.NewQueueService(store, nil)
	ctx := context.Background()

	if _, err := svc.Report(ctx, "proj#missing"); !errors.Is(err, api.ErrScopeNotFound) {
		t.Fatalf("expected ErrScopeNotFound, got %v", err)
	}

	root := testsupport.PutIntake(t, store, testsupport.SampleRequest(1, 1))
	child, err := store.Put(ctx, &queue.Item{ScopeKey: root.ScopeKey, Stage: queue.StageSearch})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	report, err := svc.Report(ctx, root.ScopeKey)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.Total != 2 || report.Done {
		t.Fatalf("expected 2 open items, got %+v", report)
	}
	if report.ProjectID != "proj" || report.RequestID != "req" {
		t.Fatalf("unexpected ids: %+v", report)
	}
	if report.Stages["search"]["pending"] != 1 {
		t.Fatalf("unexpected stage counts: %v", report.Stages)
	}

	for _, key := range []queue.Key{root.Key(), child.Key()} {
		if _, err := store.Claim(ctx, key); err != nil {
			t.Fatalf("Claim: %v", err)
		}
	}
	if err := store.Complete(ctx, root.Key(), root.PayloadJSON); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := store.RecordFailure(ctx, child.Key(), queue.Failure{Status: queue.StatusFailed, ErrorMessage: "boom"}); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	report, err = svc.Report(ctx, root.ScopeKey)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !report.Done || report.Failed != 1 {
		t.Fatalf("expected partial success to count as done, got %+v", report)
	}

	tree, err := svc.Tree(ctx, root.ScopeKey)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree) != 2 || tree[0].Stage != "intake" || tree[1].Stage != "search" {
		t.Fatalf("unexpected tree order: %+v", tree)
	}
	if tree[1].ErrorMessage != "boom" || tree[0].Payload == nil {
		t.Fatalf("unexpected tree items: %+v", tree)
	}
}

func TestFromStatusSummary(t *testing.T) {
	summary := workflow.StatusSummary{
		Running: true,
		Workers: []workflow.WorkerStatus{{Stage: queue.StageFetch, Running: true, Processed: 4}},
		StageCounts: map[queue.Stage]queue.StageCounts{
			queue.StageFetch:  {queue.StatusCompleted: 4, queue.StatusRetry: 1},
			queue.StageSearch: {queue.StatusCompleted: 1},
		},
		StageHealth: map[queue.Stage]stage.Health{
			queue.StageInsight: stage.Unhealthy("insight", "no key"),
			queue.StageIntake:  stage.Healthy("intake"),
		},
	}
	status := api.FromStatusSummary(summary)
	if status.QueueStats["completed"] != 5 || status.QueueStats["retry"] != 1 || status.QueueStats["failed"] != 0 {
		t.Fatalf("unexpected queue stats: %v", status.QueueStats)
	}
	if len(status.StageHealth) != 2 || status.StageHealth[0].Name != "intake" {
		t.Fatalf("expected pipeline order, got %+v", status.StageHealth)
	}
	if len(status.Workers) != 1 || status.Workers[0].Processed != 4 {
		t.Fatalf("unexpected workers: %+v", status.Workers)
	}
}

func TestItemLabel(t *testing.T) {
	item := api.QueueItem{SequenceKey: "fetch#1", Metadata: map[string]string{"source_name": "statnews"}}
	if got := api.ItemLabel(item); got != "statnews" {
		t.Fatalf("expected source label, got %q", got)
	}
	item.Metadata["url"] = "https://statnews.com/a"
	if got := api.ItemLabel(item); got != "https://statnews.com/a" {
		t.Fatalf("expected url label, got %q", got)
	}
	if got := api.ItemLabel(api.QueueItem{SequenceKey: "fetch#1"}); got != "fetch#1" {
		t.Fatalf("expected sequence fallback, got %q", got)
	}
}
