package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"marketintel/internal/analysis"
	"marketintel/internal/config"
	"marketintel/internal/fetch"
	"marketintel/internal/intake"
	"marketintel/internal/metrics"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
	"marketintel/internal/search"
	"marketintel/internal/services"
	"marketintel/internal/services/static"
	"marketintel/internal/stage"
	"marketintel/internal/testsupport"
	"marketintel/internal/workflow"
)

type stubStage struct {
	executeErr error
	failFirst  int
	successors []stage.Successor
	prepareErr error
	calls      int
	mu         sync.Mutex
}

func (s *stubStage) Execute(_ context.Context, item *queue.Item) error {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	item.PayloadJSON = `{"touched":true}`
	if call <= s.failFirst {
		return errors.New("connection reset")
	}
	return s.executeErr
}

func (s *stubStage) PrepareDownstream(context.Context, *queue.Item, queue.Stage) ([]stage.Successor, error) {
	return s.successors, s.prepareErr
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("stub")
}

func (s *stubStage) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// failingPutStore rejects Put for one downstream stage once.
type failingPutStore struct {
	*queue.Store
	mu       sync.Mutex
	failOn   queue.Stage
	failures int
}

func (s *failingPutStore) Put(ctx context.Context, item *queue.Item) (*queue.Item, error) {
	s.mu.Lock()
	if item.Stage == s.failOn && s.failures == 0 {
		s.failures++
		s.mu.Unlock()
		return nil, errors.New("disk full")
	}
	s.mu.Unlock()
	return s.Store.Put(ctx, item)
}

// flakyCompleteStore rejects the first failures Complete calls.
type flakyCompleteStore struct {
	*queue.Store
	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyCompleteStore) Complete(ctx context.Context, key queue.Key, payloadJSON string) error {
	s.mu.Lock()
	s.attempts++
	fail := s.attempts <= s.failures
	s.mu.Unlock()
	if fail {
		return errors.New("disk I/O error")
	}
	return s.Store.Complete(ctx, key, payloadJSON)
}

func pipelineStages(cfg *config.Config) workflow.StageSet {
	set := workflow.StageSet{
		queue.StageIntake: intake.NewHandler(cfg, nil),
		queue.StageSearch: search.NewHandler(cfg, testsupport.FixedSearcher(25), nil, nil),
		queue.StageFetch:  fetch.NewHandler(static.Summarizer{}, nil, nil),
	}
	for kind, handler := range analysis.NewHandlers(cfg, static.Analyzer{}, nil, nil) {
		set[kind] = handler
	}
	return set
}

func countByStage(t *testing.T, store *queue.Store, scope string) map[queue.Stage]queue.StageCounts {
	t.Helper()
	counts, err := store.ScopeStats(context.Background(), scope)
	if err != nil {
		t.Fatalf("ScopeStats: %v", err)
	}
	return counts
}

func TestDrainRunsFullPipelineTree(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithURLCap(3))
	store := testsupport.MustOpenStore(t, cfg)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mgr := workflow.NewManager(cfg, store, nil, workflow.WithMetrics(m))
	mgr.ConfigureStages(pipelineStages(cfg))

	intakeItem := testsupport.PutIntake(t, store, testsupport.SampleRequest(2, 1))
	processed, err := mgr.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if processed != 14 {
		t.Fatalf("expected 14 executions, got %d", processed)
	}

	counts := countByStage(t, store, intakeItem.ScopeKey)
	want := map[queue.Stage]int{
		queue.StageIntake:      1,
		queue.StageSearch:      1,
		queue.StageFetch:       3,
		queue.StageRelevance:   3,
		queue.StageInsight:     3,
		queue.StageImplication: 3,
	}
	for st, n := range want {
		if got := counts[st][queue.StatusCompleted]; got != n {
			t.Fatalf("stage %s: expected %d completed, got %d (%v)", st, n, got, counts[st])
		}
		if counts[st].Total() != n {
			t.Fatalf("stage %s: expected only completed items, got %v", st, counts[st])
		}
	}

	if got := testutil.ToFloat64(m.ItemsProcessedTotal.WithLabelValues("fetch", metrics.OutcomeCompleted)); got != 3 {
		t.Fatalf("expected 3 fetch completions recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.ItemsEnqueuedTotal.WithLabelValues("insight")); got != 3 {
		t.Fatalf("expected 3 insight items enqueued, got %v", got)
	}
}

func TestFanOutCarriesParentContext(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithURLCap(1))
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(pipelineStages(cfg))

	intakeItem := testsupport.PutIntake(t, store, testsupport.SampleRequest(1, 1))
	if _, err := mgr.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	items, err := store.List(context.Background(), queue.ListFilter{Stage: queue.StageRelevance})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one relevance item, got %d", len(items))
	}
	child := items[0]
	if child.ScopeKey != intakeItem.ScopeKey {
		t.Fatalf("scope not inherited: %q", child.ScopeKey)
	}
	if child.Priority != queue.PriorityHigh || child.Strategy != queue.StrategyStream {
		t.Fatalf("priority/strategy not inherited: %s/%s", child.Priority, child.Strategy)
	}
	if child.Metadata["parent_stage"] != string(queue.StageFetch) || child.Metadata["parent_sequence"] == "" {
		t.Fatalf("missing parent linkage: %#v", child.Metadata)
	}
	if child.Metadata["source_name"] == "" || child.Metadata["analysis_kind"] != string(queue.StageRelevance) {
		t.Fatalf("expected metadata from every ancestor, got %#v", child.Metadata)
	}
}

func TestMultipleSourcesFanOutPerSource(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithURLCap(2))
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(pipelineStages(cfg))

	intakeItem := testsupport.PutIntake(t, store, testsupport.SampleRequest(2, 3))
	if _, err := mgr.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	counts := countByStage(t, store, intakeItem.ScopeKey)
	if counts[queue.StageSearch].Total() != 3 {
		t.Fatalf("expected 3 search items, got %v", counts[queue.StageSearch])
	}
	if counts[queue.StageFetch].Total() != 6 {
		t.Fatalf("expected 6 fetch items, got %v", counts[queue.StageFetch])
	}
	for _, kind := range queue.AnalysisStages() {
		if counts[kind][queue.StatusCompleted] != 6 {
			t.Fatalf("expected 6 completed %s items, got %v", kind, counts[kind])
		}
	}
}

func TestEmptySearchEndsBranch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	set := pipelineStages(cfg)
	set[queue.StageSearch] = search.NewHandler(cfg, testsupport.FixedSearcher(0), nil, nil)
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(set)

	intakeItem := testsupport.PutIntake(t, store, testsupport.SampleRequest(1, 1))
	if _, err := mgr.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	counts := countByStage(t, store, intakeItem.ScopeKey)
	if counts[queue.StageSearch][queue.StatusCompleted] != 1 {
		t.Fatalf("expected completed search, got %v", counts[queue.StageSearch])
	}
	if counts[queue.StageFetch].Total() != 0 {
		t.Fatalf("expected no fetch items, got %v", counts[queue.StageFetch])
	}
}

func TestDrainBuildsTreePerSource(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithURLCap(3))
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(pipelineStages(cfg))

	intakeItem := testsupport.PutIntake(t, store, testsupport.SampleRequest(2, 2))
	processed, err := mgr.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if processed != 27 {
		t.Fatalf("expected 27 executions, got %d", processed)
	}

	counts := countByStage(t, store, intakeItem.ScopeKey)
	want := map[queue.Stage]int{
		queue.StageIntake:      1,
		queue.StageSearch:      2,
		queue.StageFetch:       6,
		queue.StageRelevance:   6,
		queue.StageInsight:     6,
		queue.StageImplication: 6,
	}
	total := 0
	for st, n := range want {
		if counts[st][queue.StatusCompleted] != n || counts[st].Total() != n {
			t.Fatalf("stage %s: expected %d completed, got %v", st, n, counts[st])
		}
		total += counts[st].Total()
	}
	if total != 27 {
		t.Fatalf("expected 27 items in the tree, got %d", total)
	}

	searches, err := store.List(context.Background(), queue.ListFilter{Stage: queue.StageSearch})
	if err != nil {
		t.Fatalf("List search: %v", err)
	}
	for _, item := range searches {
		doc, err := stage.Decode[payload.Search](item)
		if err != nil {
			t.Fatalf("decode search: %v", err)
		}
		if len(doc.Results) < 3 {
			t.Fatalf("search %s kept %d candidates, want at least 3", item.SequenceKey, len(doc.Results))
		}
	}
}

func TestEverySearchCarriesAllKeywords(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithURLCap(1))
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(pipelineStages(cfg))

	req := testsupport.SampleRequest(5, 3)
	testsupport.PutIntake(t, store, req)
	if _, err := mgr.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	searches, err := store.List(context.Background(), queue.ListFilter{Stage: queue.StageSearch})
	if err != nil {
		t.Fatalf("List search: %v", err)
	}
	if len(searches) != 3 {
		t.Fatalf("expected 3 search items, got %d", len(searches))
	}
	seen := map[string]bool{}
	for _, item := range searches {
		doc, err := stage.Decode[payload.Search](item)
		if err != nil {
			t.Fatalf("decode search: %v", err)
		}
		if strings.Join(doc.Keywords, ",") != strings.Join(req.Keywords, ",") {
			t.Fatalf("source %s: keywords %v, want %v", doc.Source.Name, doc.Keywords, req.Keywords)
		}
		seen[doc.Source.Name] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected one search per source, got %v", seen)
	}
}

func TestTransientFailuresThenSuccessCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(3))
	store := testsupport.MustOpenStore(t, cfg)
	stub := &stubStage{failFirst: 2}
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(workflow.StageSet{queue.StageIntake: stub})

	item := testsupport.PutIntake(t, store, testsupport.SampleRequest(1, 1))
	if _, err := mgr.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if stub.Calls() != 3 {
		t.Fatalf("expected 3 attempts, got %d", stub.Calls())
	}
	got, err := store.Get(context.Background(), item.Key())
	if err != nil || got == nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != queue.StatusCompleted || got.RetryCount != 2 {
		t.Fatalf("expected completed after 2 retries, got %s retry=%d", got.Status, got.RetryCount)
	}
	if got.ErrorMessage != "" || got.NextAttemptAt != nil {
		t.Fatalf("expected retry state cleared, got error=%q next=%v", got.ErrorMessage, got.NextAttemptAt)
	}
}

func TestCompleteStoreErrorIsRetried(t *testing.T) {
	for _, tc := range []struct {
		name       string
		failures   int
		executions int
	}{
		{name: "write retried", failures: 1, executions: 1},
		{name: "claim released", failures: 3, executions: 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			base := testsupport.MustOpenStore(t, cfg)
			store := &flakyCompleteStore{Store: base, failures: tc.failures}
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			stub := &stubStage{}
			mgr := workflow.NewManager(cfg, store, nil, workflow.WithMetrics(m))
			mgr.ConfigureStages(workflow.StageSet{queue.StageIntake: stub})

			item := testsupport.PutIntake(t, base, testsupport.SampleRequest(1, 1))
			if _, err := mgr.Drain(context.Background()); err != nil {
				t.Fatalf("Drain: %v", err)
			}
			if stub.Calls() != tc.executions {
				t.Fatalf("expected %d executions, got %d", tc.executions, stub.Calls())
			}
			got, err := base.Get(context.Background(), item.Key())
			if err != nil || got == nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Status != queue.StatusCompleted || got.RetryCount != 0 {
				t.Fatalf("expected completed without charged retries, got %s retry=%d", got.Status, got.RetryCount)
			}
			if got := testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("intake", "complete")); got != float64(tc.failures) {
				t.Fatalf("expected %d complete errors recorded, got %v", tc.failures, got)
			}
		})
	}
}

func TestPartialFanOutEnqueuesPreparedSuccessors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	parent := &stubStage{
		successors: []stage.Successor{
			{PayloadJSON: `{"n":1}`, Metadata: map[string]string{"source_index": "0"}},
			{PayloadJSON: `{"n":2}`, Metadata: map[string]string{"source_index": "1"}},
		},
		prepareErr: errors.New("encode search for source 2: unsupported value"),
	}
	mgr := workflow.NewManager(cfg, store, nil, workflow.WithMetrics(m))
	mgr.ConfigureStages(workflow.StageSet{queue.StageIntake: parent})

	item := testsupport.PutIntake(t, store, testsupport.SampleRequest(1, 3))
	if _, err := mgr.RunOnce(context.Background(), queue.StageIntake); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	counts := countByStage(t, store, item.ScopeKey)
	if counts[queue.StageIntake][queue.StatusCompleted] != 1 {
		t.Fatalf("parent must complete, got %v", counts[queue.StageIntake])
	}
	if counts[queue.StageSearch][queue.StatusPending] != 2 {
		t.Fatalf("expected the 2 prepared successors enqueued, got %v", counts[queue.StageSearch])
	}
	if got := testutil.ToFloat64(m.FanoutFailuresTotal.WithLabelValues("search")); got != 1 {
		t.Fatalf("expected one fan-out failure recorded, got %v", got)
	}
}

func TestInvalidIntakeFailsWithoutRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(pipelineStages(cfg))

	item := testsupport.PutIntake(t, store, testsupport.SampleRequest(0, 1))
	if _, err := mgr.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	got, err := store.Get(context.Background(), item.Key())
	if err != nil || got == nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != queue.StatusFailed || got.RetryCount != 1 {
		t.Fatalf("expected failed after a single attempt, got %s retry=%d", got.Status, got.RetryCount)
	}
	if !strings.Contains(got.ErrorMessage, "keywords is required") {
		t.Fatalf("expected validation message, got %q", got.ErrorMessage)
	}
	doc, err := stage.Decode[payload.Intake](got)
	if err != nil {
		t.Fatalf("decode intake: %v", err)
	}
	if doc.Validation == nil || doc.Validation.Valid {
		t.Fatalf("expected failed validation result persisted, got %s", got.PayloadJSON)
	}
	if counts := countByStage(t, store, item.ScopeKey); counts[queue.StageSearch].Total() != 0 {
		t.Fatalf("expected no search items, got %v", counts[queue.StageSearch])
	}
}

func TestRetryExhaustionFailsItem(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(3), testsupport.WithURLCap(1))
	store := testsupport.MustOpenStore(t, cfg)
	counter := &testsupport.CallCounter{}
	set := pipelineStages(cfg)
	set[queue.StageInsight] = analysis.NewHandler(queue.StageInsight, cfg,
		testsupport.FailingAnalyzer(errors.New("upstream 503"), counter), nil, nil)
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(set)

	intakeItem := testsupport.PutIntake(t, store, testsupport.SampleRequest(1, 1))
	if _, err := mgr.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if counter.Calls() != 3 {
		t.Fatalf("expected 3 analyzer attempts, got %d", counter.Calls())
	}
	items, err := store.List(context.Background(), queue.ListFilter{Stage: queue.StageInsight})
	if err != nil || len(items) != 1 {
		t.Fatalf("List insight: %v (%d items)", err, len(items))
	}
	if items[0].Status != queue.StatusFailed || items[0].RetryCount != 3 {
		t.Fatalf("expected failed after 3 retries, got %s retry=%d", items[0].Status, items[0].RetryCount)
	}
	if !strings.Contains(items[0].ErrorMessage, "upstream 503") {
		t.Fatalf("expected provider error recorded, got %q", items[0].ErrorMessage)
	}

	counts := countByStage(t, store, intakeItem.ScopeKey)
	for _, kind := range []queue.Stage{queue.StageRelevance, queue.StageImplication} {
		if counts[kind][queue.StatusCompleted] != 1 {
			t.Fatalf("sibling %s should complete, got %v", kind, counts[kind])
		}
	}
}

func TestRetryWaitsForNextAttempt(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(3))
	cfg.Workflow.RetryDelaySeconds = 60
	store := testsupport.MustOpenStore(t, cfg)
	stub := &stubStage{executeErr: errors.New("timeout")}
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(workflow.StageSet{queue.StageIntake: stub})

	item := testsupport.PutIntake(t, store, testsupport.SampleRequest(1, 1))
	if _, err := mgr.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if stub.Calls() != 1 {
		t.Fatalf("expected one attempt before the retry delay elapses, got %d", stub.Calls())
	}
	got, err := store.Get(context.Background(), item.Key())
	if err != nil || got == nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != queue.StatusRetry || got.RetryCount != 1 || got.NextAttemptAt == nil {
		t.Fatalf("expected scheduled retry, got %s retry=%d next=%v", got.Status, got.RetryCount, got.NextAttemptAt)
	}
	if got.PayloadJSON != `{"touched":true}` {
		t.Fatalf("expected payload changes persisted on failure, got %s", got.PayloadJSON)
	}
}

func TestFanOutFailureIsIsolated(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithURLCap(1))
	base := testsupport.MustOpenStore(t, cfg)
	store := &failingPutStore{Store: base, failOn: queue.StageInsight}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	mgr := workflow.NewManager(cfg, store, nil, workflow.WithMetrics(m))
	mgr.ConfigureStages(pipelineStages(cfg))

	intakeItem := testsupport.PutIntake(t, base, testsupport.SampleRequest(1, 1))
	if _, err := mgr.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	counts := countByStage(t, base, intakeItem.ScopeKey)
	if counts[queue.StageFetch][queue.StatusCompleted] != 1 {
		t.Fatalf("parent must stay completed, got %v", counts[queue.StageFetch])
	}
	if counts[queue.StageInsight].Total() != 0 {
		t.Fatalf("expected insight successor to be lost, got %v", counts[queue.StageInsight])
	}
	if counts[queue.StageRelevance][queue.StatusCompleted] != 1 || counts[queue.StageImplication][queue.StatusCompleted] != 1 {
		t.Fatalf("siblings must still be created, got %v", counts)
	}
	if got := testutil.ToFloat64(m.FanoutFailuresTotal.WithLabelValues("insight")); got != 1 {
		t.Fatalf("expected one fan-out failure recorded, got %v", got)
	}
}

func TestStartProcessesInBackgroundAndStops(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithURLCap(1))
	cfg.Workflow.PollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil)
	mgr.ConfigureStages(pipelineStages(cfg))

	intakeItem := testsupport.PutIntake(t, store, testsupport.SampleRequest(1, 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mgr.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		counts := countByStage(t, store, intakeItem.ScopeKey)
		if counts[queue.StageImplication][queue.StatusCompleted] == 1 &&
			counts[queue.StageInsight][queue.StatusCompleted] == 1 &&
			counts[queue.StageRelevance][queue.StatusCompleted] == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline did not finish: %v", counts)
		}
		time.Sleep(20 * time.Millisecond)
	}

	status, err := mgr.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || len(status.Workers) != len(queue.AllStages()) {
		t.Fatalf("unexpected status: %+v", status)
	}
	for _, ws := range status.Workers {
		if ws.Processed != 1 {
			t.Fatalf("worker %s processed %d items, want 1", ws.Stage, ws.Processed)
		}
		if health := status.StageHealth[ws.Stage]; !health.Ready {
			t.Fatalf("stage %s not healthy: %+v", ws.Stage, health)
		}
	}

	mgr.Stop()
	status, err = mgr.Status(context.Background())
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status.Running {
		t.Fatal("expected manager stopped")
	}
	for _, ws := range status.Workers {
		if ws.Running {
			t.Fatalf("worker %s still running", ws.Stage)
		}
	}
}

func TestRunOnceRequiresConfiguredStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := workflow.NewManager(cfg, store, nil)
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected Start without stages to fail")
	}
	mgr.ConfigureStages(workflow.StageSet{queue.StageIntake: &stubStage{}})
	if _, err := mgr.RunOnce(context.Background(), queue.StageFetch); err == nil {
		t.Fatal("expected error for unconfigured stage")
	}
}

func TestRetryPolicyDecide(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	policy := workflow.RetryPolicy{MaxRetries: 3, Delay: time.Minute}

	transient := errors.New("timeout")
	got := policy.Decide(&queue.Item{RetryCount: 0}, transient, now)
	if got.Status != queue.StatusRetry || got.RetryCount != 1 || !got.NextAttemptAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected first failure: %+v", got)
	}
	got = policy.Decide(&queue.Item{RetryCount: 2}, transient, now)
	if got.Status != queue.StatusFailed || got.RetryCount != 3 {
		t.Fatalf("expected exhaustion, got %+v", got)
	}

	permanent := services.Wrap(services.ErrValidation, "intake", "validate", "bad request", nil)
	got = policy.Decide(&queue.Item{RetryCount: 1}, permanent, now)
	if got.Status != queue.StatusFailed || got.RetryCount != 2 || got.NextAttemptAt != nil {
		t.Fatalf("expected immediate failure, got %+v", got)
	}

	if !queue.CanTransition(queue.StatusProcessing, got.Status) {
		t.Fatalf("decided status %s must be reachable from processing", got.Status)
	}
}
