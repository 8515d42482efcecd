package queue

import (
	"strings"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	legal := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusRetry, StatusProcessing}:     true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusRetry}:     true,
		{StatusProcessing, StatusFailed}:    true,
		{StatusPending, StatusFailed}:       true,
		{StatusRetry, StatusFailed}:         true,
	}
	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := legal[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
	for _, terminal := range []Status{StatusCompleted, StatusFailed} {
		if !terminal.IsTerminal() {
			t.Fatalf("%s should be terminal", terminal)
		}
	}
}

func TestDefaultGraph(t *testing.T) {
	graph := DefaultGraph()
	if got := graph.Downstream(StageIntake); len(got) != 1 || got[0] != StageSearch {
		t.Fatalf("unexpected intake successors: %v", got)
	}
	if got := graph.Downstream(StageFetch); len(got) != 3 {
		t.Fatalf("fetch must fan out to three analysis stages, got %v", got)
	}
	for _, stage := range AnalysisStages() {
		if !graph.IsTerminal(stage) {
			t.Fatalf("%s should be terminal", stage)
		}
	}

	graph[StageIntake] = nil
	if len(DefaultGraph().Downstream(StageIntake)) != 1 {
		t.Fatal("DefaultGraph must return an independent copy")
	}
}

func TestSequenceKeysOrderByTime(t *testing.T) {
	early := NewSequenceKey(StageFetch, time.Unix(100, 0))
	late := NewSequenceKey(StageFetch, time.Unix(100, 1))
	if !strings.HasPrefix(early, "fetch#") {
		t.Fatalf("unexpected key prefix: %s", early)
	}
	if early >= late {
		t.Fatalf("expected %s < %s", early, late)
	}
	if NewSequenceKey(StageFetch, time.Unix(100, 0)) == early {
		t.Fatal("expected unique keys for identical timestamps")
	}
}

func TestScopeKeyRoundTrip(t *testing.T) {
	scope := ScopeKey("proj-1", "req-9")
	project, request, ok := SplitScopeKey(scope)
	if !ok || project != "proj-1" || request != "req-9" {
		t.Fatalf("unexpected split: %q %q %v", project, request, ok)
	}
	if _, _, ok := SplitScopeKey("garbage"); ok {
		t.Fatal("expected split failure")
	}
}
