package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"marketintel/internal/blobstore"
	"marketintel/internal/config"
	"marketintel/internal/daemon"
	"marketintel/internal/daemonctl"
	"marketintel/internal/logging"
	"marketintel/internal/metrics"
	"marketintel/internal/queue"
	"marketintel/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the marketintel daemon and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logName := fmt.Sprintf("marketintel-%s.log", runID)
	logPath := filepath.Join(cfg.Paths.LogDir, logName)
	logger, err := logging.NewFromConfig(cfg, logName)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", logging.LogFileName, err)
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, "marketintel-*.log", cfg.Logging.RetentionDays, logPath)
	logProviderSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := daemonctl.WritePID(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	blobs, err := blobstore.Open(cfg)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	if blobs != nil {
		defer blobs.Close()
	}

	caps, err := BuildCapabilities(signalCtx, cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	manager := workflow.NewManager(cfg, store, logger, workflow.WithMetrics(m))
	manager.ConfigureStages(BuildStages(cfg, caps, blobs, logger))

	d, err := daemon.New(cfg, store, logger, manager, daemon.WithMetrics(registry, m))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration, the lock file and queue database access"),
			logging.String(logging.FieldImpact, "daemon is not processing queue items"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("marketintel daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop()
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logProviderSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("provider snapshot",
		logging.String(logging.FieldEventType, "provider_snapshot"),
		logging.String("search_provider", cfg.Search.Provider),
		logging.String("fetch_provider", cfg.Fetch.Provider),
		logging.Bool("fetch_summarize", cfg.Fetch.Summarize),
		logging.String("analysis_provider", cfg.Analysis.Provider),
		logging.Bool("anthropic_key_present", strings.TrimSpace(cfg.Anthropic.APIKey) != ""),
		logging.Bool("gemini_key_present", strings.TrimSpace(cfg.Gemini.APIKey) != ""),
		logging.Bool("serpapi_key_present", strings.TrimSpace(cfg.SerpAPI.APIKey) != ""),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("blob_backend", cfg.Blobstore.Backend),
		logging.Int("max_urls_per_search", cfg.Search.MaxURLsPerSearch),
		logging.Int("max_retries", cfg.Workflow.MaxRetries),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.String("queue_db", cfg.QueuePath()),
	)
}
