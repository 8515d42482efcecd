package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"marketintel/internal/api"
	"marketintel/internal/config"
	"marketintel/internal/logging"
	"marketintel/internal/metrics"
	"marketintel/internal/queue"
	"marketintel/internal/stage"
	"marketintel/internal/testsupport"
	"marketintel/internal/workflow"
)

type idleStage struct{}

func (idleStage) Execute(context.Context, *queue.Item) error { return nil }
func (idleStage) PrepareDownstream(context.Context, *queue.Item, queue.Stage) ([]stage.Successor, error) {
	return nil, nil
}
func (idleStage) HealthCheck(context.Context) stage.Health { return stage.Healthy("idle") }

func newTestServer(t *testing.T, cfg *config.Config) (*apiServer, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{queue.StageIntake: idleStage{}})
	reg := prometheus.NewRegistry()
	d, err := New(cfg, store, logger, mgr, WithMetrics(reg, metrics.New(reg)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d.server, store
}

func serve(srv *apiServer, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)
	return w
}

func TestAPISubmitReportAndTree(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Enabled = true
	srv, _ := newTestServer(t, cfg)

	body := `{"project_id":"acme","request_id":"q1","keywords":["oncology"],` +
		`"sources":[{"name":"statnews","url":"statnews.com","type":"news"}]}`
	w := serve(srv, http.MethodPost, "/api/requests", body, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var result api.SubmitResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	if result.ScopeKey != "acme#q1" {
		t.Fatalf("unexpected scope %q", result.ScopeKey)
	}

	scopePath := "/api/requests/" + url.PathEscape(result.ScopeKey)
	w = serve(srv, http.MethodGet, scopePath, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var report api.ScopeReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Total != 1 || report.Done || report.Stages["intake"]["pending"] != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	w = serve(srv, http.MethodGet, scopePath+"/items", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Stage != "intake" {
		t.Fatalf("unexpected tree: %+v", list.Items)
	}

	w = serve(srv, http.MethodGet, "/api/requests/"+url.PathEscape("acme#missing"), "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown scope, got %d", w.Code)
	}

	w = serve(srv, http.MethodGet, cfg.Metrics.Path, "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "marketintel_pipeline_submissions_total 1") {
		t.Fatalf("expected submission counter in metrics, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPISubmitRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, testsupport.NewConfig(t))

	if w := serve(srv, http.MethodPost, "/api/requests", "{not json", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", w.Code)
	}
	if w := serve(srv, http.MethodPost, "/api/requests", `{"keywords":["x"]}`, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing project, got %d", w.Code)
	}
	if w := serve(srv, http.MethodGet, "/api/queue?stage=bogus", "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %d", w.Code)
	}
}

func TestAPISubmitStoreFailureReturns500(t *testing.T) {
	srv, store := newTestServer(t, testsupport.NewConfig(t))
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	body := `{"project_id":"acme","request_id":"q2","keywords":["oncology"],` +
		`"sources":[{"name":"statnews","url":"statnews.com","type":"news"}]}`
	w := serve(srv, http.MethodPost, "/api/requests", body, "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when the store is unavailable, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPIRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("s3cret"))
	srv, store := newTestServer(t, cfg)
	testsupport.PutIntake(t, store, testsupport.SampleRequest(1, 1))

	if w := serve(srv, http.MethodGet, "/api/queue", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(srv, http.MethodGet, "/api/queue", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	w := serve(srv, http.MethodGet, "/api/queue?status=pending", "", "s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	var list api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(list.Items))
	}
}

func TestAPIStatus(t *testing.T) {
	srv, _ := newTestServer(t, testsupport.NewConfig(t))
	w := serve(srv, http.MethodGet, "/api/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Running || status.QueueDBPath == "" || len(status.Workflow.StageHealth) != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}
