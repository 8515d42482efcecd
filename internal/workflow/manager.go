package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketintel/internal/config"
	"marketintel/internal/logging"
	"marketintel/internal/metrics"
	"marketintel/internal/queue"
	"marketintel/internal/stage"
)

// StageSet maps each stage to the handler that executes its items.
type StageSet map[queue.Stage]stage.Handler

// Manager coordinates the per-stage workers.
type Manager struct {
	cfg     *config.Config
	store   QueueStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	graph   queue.StageGraph
	policy  RetryPolicy
	now     func() time.Time

	mu      sync.RWMutex
	workers map[queue.Stage]*Worker
	order   []queue.Stage
	running bool
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithMetrics records worker activity on m.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithClock overrides the time source used for retry scheduling.
func WithClock(now func() time.Time) ManagerOption {
	return func(mgr *Manager) {
		if now != nil {
			mgr.now = now
		}
	}
}

// WithGraph replaces the default stage graph.
func WithGraph(graph queue.StageGraph) ManagerOption {
	return func(mgr *Manager) {
		if graph != nil {
			mgr.graph = graph
		}
	}
}

// NewManager constructs a workflow manager. Call ConfigureStages before Start.
func NewManager(cfg *config.Config, store QueueStore, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:     cfg,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "workflow-manager"),
		graph:   queue.DefaultGraph(),
		policy:  RetryPolicy{MaxRetries: cfg.Workflow.MaxRetries, Delay: cfg.RetryDelay()},
		now:     time.Now,
		workers: make(map[queue.Stage]*Worker),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConfigureStages creates one worker per stage with a handler. Stages are
// kept in pipeline order.
func (m *Manager) ConfigureStages(set StageSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = make(map[queue.Stage]*Worker, len(set))
	m.order = m.order[:0]
	for _, st := range queue.AllStages() {
		handler, ok := set[st]
		if !ok || handler == nil {
			continue
		}
		m.workers[st] = newWorker(m, st, handler)
		m.order = append(m.order, st)
	}
}

// Start launches every configured worker.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.order) == 0 {
		return errors.New("workflow stages not configured")
	}
	for _, st := range m.order {
		m.workers[st].start(ctx)
	}
	m.running = true
	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Int("workers", len(m.order)),
		logging.Duration("poll_interval", m.cfg.PollInterval()),
		logging.Int("batch_size", m.cfg.Workflow.BatchSize),
	)
	return nil
}

// Stop stops claiming new items and waits for in-flight items to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	workers := m.orderedWorkers()
	m.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

// RunOnce performs one synchronous poll cycle for a stage and returns the
// number of items it executed.
func (m *Manager) RunOnce(ctx context.Context, st queue.Stage) (int, error) {
	m.mu.RLock()
	w := m.workers[st]
	m.mu.RUnlock()
	if w == nil {
		return 0, fmt.Errorf("no worker configured for stage %q", st)
	}
	return w.pollOnce(ctx)
}

// Drain runs poll cycles across every stage in pipeline order until a full
// pass executes nothing. Items waiting for a future retry time are left alone.
func (m *Manager) Drain(ctx context.Context) (int, error) {
	m.mu.RLock()
	order := append([]queue.Stage(nil), m.order...)
	m.mu.RUnlock()

	total := 0
	for {
		pass := 0
		for _, st := range order {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			n, err := m.RunOnce(ctx, st)
			if err != nil {
				return total, err
			}
			pass += n
		}
		total += pass
		if pass == 0 {
			return total, nil
		}
	}
}

func (m *Manager) orderedWorkers() []*Worker {
	out := make([]*Worker, 0, len(m.order))
	for _, st := range m.order {
		out = append(out, m.workers[st])
	}
	return out
}
