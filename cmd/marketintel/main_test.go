package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marketintel/internal/api"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "search=static")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestSubmitRequiresProject(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env, "submit", "--keyword", "oncology", "--source", "statnews,statnews.com")
	if err == nil || !strings.Contains(err.Error(), "project") {
		t.Fatalf("expected project error, got %v", err)
	}
}

func TestSubmitRejectsMalformedSource(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env, "submit", "--project", "p", "--keyword", "k", "--source", "only-a-name")
	if err == nil || !strings.Contains(err.Error(), "invalid source") {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestSubmitAndDrainWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "submit",
		"--project", "proj", "--request-id", "req",
		"--keyword", "oncology", "--keyword", "pricing",
		"--source", "statnews,statnews.com,news",
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Accepted proj#req")
	requireContains(t, out, "Daemon not running")

	out, err = runCLI(t, env, "status", "proj#req")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "In progress")

	out, err = runCLI(t, env, "drain")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	// intake, search, two fetches and three analyses per fetch
	requireContains(t, out, "Executed 10 item(s)")

	out, err = runCLI(t, env, "--json", "status", "proj#req")
	if err != nil {
		t.Fatalf("status json: %v", err)
	}
	var report api.ScopeReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if !report.Done || report.Total != 10 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	out, err = runCLI(t, env, "tree", "proj#req")
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	for _, stage := range []string{"intake", "search", "fetch", "relevance", "insight", "implication"} {
		requireContains(t, out, stage)
	}
}

func TestSubmitFromFile(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(t.TempDir(), "request.json")
	doc := `{"project_id":"acme","keywords":["biosimilars"],"sources":[{"name":"fierce","url":"fiercepharma.com","type":"news"}],"priority":"high"}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write request: %v", err)
	}

	out, err := runCLI(t, env, "--json", "submit", "--file", path)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var result api.SubmitResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result %q: %v", out, err)
	}
	if !strings.HasPrefix(result.ScopeKey, "acme#") || result.SequenceKey == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	out, err = runCLI(t, env, "queue", "list", "--stage", "intake")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "pending")

	out, err = runCLI(t, env, "queue", "stats")
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	requireContains(t, out, "pending")
}

func TestQueueListRejectsUnknownStage(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := runCLI(t, env, "queue", "list", "--stage", "ripping"); err == nil {
		t.Fatal("expected unknown stage error")
	}
}

func TestQueueMaintenanceCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := runCLI(t, env, "submit", "--project", "p", "--keyword", "k", "--source", "s,s.com"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	out, err := runCLI(t, env, "queue", "health")
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Integrity")

	out, err = runCLI(t, env, "queue", "scopes")
	if err != nil {
		t.Fatalf("queue scopes: %v", err)
	}
	requireContains(t, out, "p#")

	out, err = runCLI(t, env, "queue", "reclaim", "--older-than", "1m")
	if err != nil {
		t.Fatalf("queue reclaim: %v", err)
	}
	requireContains(t, out, "Reclaimed 0 item(s)")

	if _, err := runCLI(t, env, "queue", "clear"); err == nil {
		t.Fatal("expected clear to require --yes")
	}
	out, err = runCLI(t, env, "queue", "clear", "--yes")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Removed 1 item(s)")
}

func TestStatusUnknownScope(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, env, "status", "nobody#nothing")
	if err == nil || !strings.Contains(err.Error(), "no items found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestCommandsUseDaemonWhenRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out, err := runCLI(t, env, "submit", "--project", "live", "--request-id", "r1",
		"--keyword", "oncology", "--source", "statnews,statnews.com")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Accepted live#r1")
	if strings.Contains(out, "Daemon not running") {
		t.Fatalf("expected submission through the daemon, got %q", out)
	}

	waitFor(t, 10*time.Second, func() bool {
		report, err := env.daemon.Service().Report(context.Background(), "live#r1")
		return err == nil && report.Done
	})

	out, err = runCLI(t, env, "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "implication")

	if _, err := runCLI(t, env, "drain"); err == nil {
		t.Fatal("expected drain to refuse while the daemon runs")
	}
}

func TestDaemonStatusWhenStopped(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, env, "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	requireContains(t, out, "Not running")

	out, err = runCLI(t, env, "daemon", "stop")
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
