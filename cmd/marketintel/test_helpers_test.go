package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"marketintel/internal/config"
	"marketintel/internal/daemon"
	"marketintel/internal/daemonrun"
	"marketintel/internal/logging"
	"marketintel/internal/testsupport"
	"marketintel/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	daemon     *daemon.Daemon
}

// setupCLITestEnv writes a config file for a fresh temp tree. The daemon is
// not started; call startDaemon for API-backed tests.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithURLCap(2))
	env := &cliTestEnv{
		cfg:        cfg,
		configPath: filepath.Join(testsupport.BaseDir(cfg), "marketintel.toml"),
	}
	writeTestConfig(t, env.configPath, cfg)
	return env
}

func (env *cliTestEnv) startDaemon(t *testing.T) {
	t.Helper()
	store := testsupport.MustOpenStore(t, env.cfg)
	logger := logging.NewNop()

	caps, err := daemonrun.BuildCapabilities(context.Background(), env.cfg)
	if err != nil {
		t.Fatalf("BuildCapabilities: %v", err)
	}
	mgr := workflow.NewManager(env.cfg, store, logger)
	mgr.ConfigureStages(daemonrun.BuildStages(env.cfg, caps, nil, logger))
	d, err := daemon.New(env.cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Close()
	})

	env.daemon = d
	env.cfg.Paths.APIBind = d.APIAddress()
	writeTestConfig(t, env.configPath, env.cfg)
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
