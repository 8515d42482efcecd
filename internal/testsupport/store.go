package testsupport

import (
	"context"
	"testing"

	"marketintel/internal/config"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SampleRequest returns a valid request with the given number of keywords and
// sources.
func SampleRequest(keywords, sources int) payload.Request {
	req := payload.Request{
		ProjectID:        "proj",
		RequestID:        "req",
		ExtractionMode:   "summary",
		QualityThreshold: 0.5,
		Priority:         "high",
		Strategy:         "stream",
	}
	names := []string{"oncology", "biosimilar", "pricing", "pipeline", "regulatory", "adoption"}
	for i := 0; i < keywords; i++ {
		req.Keywords = append(req.Keywords, names[i%len(names)])
	}
	sourceNames := []string{"pubmed", "fiercepharma", "statnews", "endpoints"}
	for i := 0; i < sources; i++ {
		name := sourceNames[i%len(sourceNames)]
		req.Sources = append(req.Sources, payload.Source{Name: name, URL: name + ".example.com", Type: "news"})
	}
	return req
}

// PutIntake enqueues a pending intake item holding req and returns it.
func PutIntake(t testing.TB, store *queue.Store, req payload.Request) *queue.Item {
	t.Helper()

	doc, err := payload.Encode(payload.Intake{Request: req})
	if err != nil {
		t.Fatalf("encode intake: %v", err)
	}
	item, err := store.Put(context.Background(), &queue.Item{
		ScopeKey:    queue.ScopeKey(req.ProjectID, req.RequestID),
		Stage:       queue.StageIntake,
		Priority:    queue.Priority(req.Priority),
		Strategy:    queue.Strategy(req.Strategy),
		PayloadJSON: doc,
		Metadata:    map[string]string{"origin": "test"},
	})
	if err != nil {
		t.Fatalf("put intake: %v", err)
	}
	return item
}
