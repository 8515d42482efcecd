package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketintel/internal/logging"
	"marketintel/internal/metrics"
	"marketintel/internal/queue"
	"marketintel/internal/services"
	"marketintel/internal/stage"
)

const persistAttempts = 3

var persistBackoff = 25 * time.Millisecond

// Worker polls one stage of the queue and executes its items sequentially.
type Worker struct {
	mgr     *Manager
	stage   queue.Stage
	handler stage.Handler
	logger  *slog.Logger

	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	processed     int64
	failed        int64
	lastError     string
	lastItem      string
	lastHeartbeat time.Time
}

func newWorker(mgr *Manager, st queue.Stage, handler stage.Handler) *Worker {
	return &Worker{
		mgr:     mgr,
		stage:   st,
		handler: handler,
		logger:  logging.ForStage(mgr.logger, mgr.cfg, string(st)),
	}
}

func (w *Worker) start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mgr.metrics.WorkerStarted()
	go w.loop(runCtx)
}

func (w *Worker) stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.mgr.metrics.WorkerStopped()
		w.wg.Done()
	}()

	w.logger.Info("worker started", logging.String(logging.FieldEventType, "worker_started"))
	cfg := w.mgr.cfg
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped", logging.String(logging.FieldEventType, "worker_stopped"))
			return
		}
		n, err := w.pollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.recordError(err)
			logging.ErrorWithContext(w.logger, "queue scan failed", "queue_scan_failed",
				append(logging.ErrorAttrs(err), logging.Duration("backoff", cfg.ErrorRetryInterval()))...)
			sleep(ctx, cfg.ErrorRetryInterval())
			continue
		}
		if n == 0 {
			w.heartbeat()
			sleep(ctx, cfg.PollInterval())
		}
	}
}

// pollOnce scans one batch of claimable items and executes each in order. It
// returns how many items this worker claimed.
func (w *Worker) pollOnce(ctx context.Context) (int, error) {
	m := w.mgr
	items, err := m.store.Scan(ctx, w.stage, queue.ClaimableStatuses(), m.cfg.Workflow.BatchSize, m.now())
	if err != nil {
		m.metrics.StoreError(string(w.stage), "scan")
		return 0, err
	}
	handled := 0
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		if w.process(ctx, item) {
			handled++
		}
		if i < len(items)-1 {
			sleep(ctx, m.cfg.ItemDelay())
		}
	}
	return handled, nil
}

// process claims and executes one item. It returns false when the item was
// not claimed by this worker.
func (w *Worker) process(ctx context.Context, candidate *queue.Item) bool {
	m := w.mgr
	stageName := string(w.stage)
	key := candidate.Key()

	item, err := m.store.Claim(ctx, key)
	if err != nil {
		m.metrics.StoreError(stageName, "claim")
		w.recordError(err)
		logging.ErrorWithContext(w.logger, "claim failed", "claim_failed",
			append(logging.ErrorAttrs(err), logging.String(logging.FieldSequence, key.SequenceKey))...)
		return false
	}
	if item == nil {
		w.logger.Debug("item claimed elsewhere", logging.String(logging.FieldSequence, key.SequenceKey))
		return false
	}
	m.metrics.Claimed(stageName)

	itemCtx := services.WithScope(ctx, item.ScopeKey)
	itemCtx = services.WithStage(itemCtx, stageName)
	itemCtx = services.WithSequence(itemCtx, item.SequenceKey)
	itemCtx = services.WithCorrelationID(itemCtx, uuid.NewString())
	logger := logging.WithContext(itemCtx, w.logger)

	w.mu.Lock()
	w.lastItem = key.String()
	w.mu.Unlock()

	started := time.Now()
	execErr := w.handler.Execute(itemCtx, item)
	elapsed := time.Since(started)

	// Results are persisted even when shutdown begins mid-execution.
	ctx = context.WithoutCancel(ctx)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) && itemCtx.Err() != nil {
			w.interrupt(ctx, logger, item)
			return true
		}
		w.fail(ctx, logger, item, execErr, elapsed)
		return true
	}

	err = w.persist(ctx, "complete", func() error {
		return m.store.Complete(ctx, key, item.PayloadJSON)
	})
	if err != nil {
		if errors.Is(err, queue.ErrTransitionConflict) {
			m.metrics.Processed(stageName, metrics.OutcomeConflict, elapsed)
			logging.WarnWithContext(logger, "item changed while processing", "transition_conflict",
				logging.Error(err),
				logging.String(logging.FieldImpact, "result discarded, no successors created"),
			)
			return true
		}
		logging.ErrorWithContext(logger, "complete failed", "complete_failed",
			append(logging.ErrorAttrs(err), logging.String(logging.FieldImpact, "item released for re-execution"))...)
		w.release(ctx, logger, item, "result not persisted: "+err.Error())
		return true
	}
	m.metrics.Processed(stageName, metrics.OutcomeCompleted, elapsed)
	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
	logger.Info("item completed",
		logging.String(logging.FieldEventType, "item_completed"),
		logging.Duration("duration", elapsed),
	)

	w.fanOut(ctx, logger, item)
	return true
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, item *queue.Item, execErr error, elapsed time.Duration) {
	m := w.mgr
	stageName := string(w.stage)
	failure := m.policy.Decide(item, execErr, m.now())
	failure.PayloadJSON = item.PayloadJSON

	err := w.persist(ctx, "record_failure", func() error {
		return m.store.RecordFailure(ctx, item.Key(), failure)
	})
	if err != nil {
		logging.ErrorWithContext(logger, "record failure failed", "record_failure_failed",
			append(logging.ErrorAttrs(err), logging.String("execute_error", execErr.Error()))...)
		if !errors.Is(err, queue.ErrTransitionConflict) {
			w.release(ctx, logger, item, "failure not persisted: "+execErr.Error())
		}
		return
	}

	w.recordError(execErr)
	attrs := append(logging.ErrorAttrs(execErr),
		logging.Int("retry_count", failure.RetryCount),
		logging.Int("max_retries", m.policy.MaxRetries),
		logging.Duration("duration", elapsed),
	)
	if failure.Status == queue.StatusRetry {
		m.metrics.Processed(stageName, metrics.OutcomeRetry, elapsed)
		attrs = append(attrs, logging.String("next_attempt_at", failure.NextAttemptAt.UTC().Format(time.RFC3339)))
		logging.WarnWithContext(logger, "item scheduled for retry", "item_retry", attrs...)
		return
	}
	m.metrics.Processed(stageName, metrics.OutcomeFailed, elapsed)
	w.mu.Lock()
	w.failed++
	w.mu.Unlock()
	logging.ErrorWithContext(logger, "item failed", "item_failed", attrs...)
}

// interrupt returns an item cut short by shutdown to retry without charging
// it a retry.
func (w *Worker) interrupt(ctx context.Context, logger *slog.Logger, item *queue.Item) {
	if w.release(ctx, logger, item, "interrupted by shutdown") {
		logger.Info("item interrupted by shutdown", logging.String(logging.FieldEventType, "item_interrupted"))
	}
}

// release hands a claimed item back to retry, due immediately and with its
// retry count and stored payload unchanged. It reports whether the item left
// processing.
func (w *Worker) release(ctx context.Context, logger *slog.Logger, item *queue.Item, reason string) bool {
	now := w.mgr.now()
	failure := queue.Failure{
		Status:        queue.StatusRetry,
		RetryCount:    item.RetryCount,
		ErrorMessage:  reason,
		NextAttemptAt: &now,
	}
	err := w.persist(ctx, "release", func() error {
		return w.mgr.store.RecordFailure(ctx, item.Key(), failure)
	})
	if err != nil {
		logging.ErrorWithContext(logger, "release failed", "release_failed",
			append(logging.ErrorAttrs(err), logging.String(logging.FieldImpact, "item remains in processing until reclaimed"))...)
		return false
	}
	return true
}

// persist runs a state write, retrying store errors with a short linear
// backoff. Conflicts and illegal transitions return immediately.
func (w *Worker) persist(ctx context.Context, op string, write func() error) error {
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		err = write()
		if err == nil || errors.Is(err, queue.ErrTransitionConflict) || errors.Is(err, queue.ErrIllegalTransition) {
			return err
		}
		w.mgr.metrics.StoreError(string(w.stage), op)
		w.recordError(err)
		if attempt < persistAttempts {
			sleep(ctx, time.Duration(attempt)*persistBackoff)
		}
	}
	return err
}

// fanOut creates successors for every downstream stage. A failure for one
// successor never affects the parent or its siblings.
func (w *Worker) fanOut(ctx context.Context, logger *slog.Logger, parent *queue.Item) {
	m := w.mgr
	for _, next := range m.graph.Downstream(parent.Stage) {
		successors, err := w.handler.PrepareDownstream(ctx, parent, next)
		if err != nil {
			m.metrics.FanoutFailed(string(next))
			logging.WarnWithContext(logger, "prepare downstream failed", "fanout_failed",
				append(logging.ErrorAttrs(err),
					logging.String("next_stage", string(next)),
					logging.Int("prepared", len(successors)),
				)...)
		}
		if len(successors) == 0 {
			continue
		}
		created, failed := 0, 0
		for _, successor := range successors {
			child := &queue.Item{
				ScopeKey:    parent.ScopeKey,
				Stage:       next,
				Status:      queue.StatusPending,
				Priority:    parent.Priority,
				Strategy:    parent.Strategy,
				PayloadJSON: successor.PayloadJSON,
				Metadata:    successorMetadata(parent, successor),
			}
			if _, err := m.store.Put(ctx, child); err != nil {
				failed++
				m.metrics.FanoutFailed(string(next))
				logging.WarnWithContext(logger, "successor enqueue failed", "fanout_failed",
					append(logging.ErrorAttrs(err), logging.String("next_stage", string(next)))...)
				continue
			}
			created++
		}
		m.metrics.Enqueued(string(next), created)
		logger.Info("successors enqueued",
			logging.String(logging.FieldEventType, "fanout_complete"),
			logging.String("next_stage", string(next)),
			logging.Int("created", created),
			logging.Int("failed", failed),
		)
	}
}

func successorMetadata(parent *queue.Item, successor stage.Successor) map[string]string {
	out := make(map[string]string, len(parent.Metadata)+len(successor.Metadata)+2)
	for k, v := range parent.Metadata {
		out[k] = v
	}
	for k, v := range successor.Metadata {
		out[k] = v
	}
	out["parent_stage"] = string(parent.Stage)
	out["parent_sequence"] = parent.SequenceKey
	return out
}

func (w *Worker) heartbeat() {
	interval := w.mgr.cfg.HeartbeatLogInterval()
	now := time.Now()
	w.mu.Lock()
	due := interval > 0 && now.Sub(w.lastHeartbeat) >= interval
	if due {
		w.lastHeartbeat = now
	}
	w.mu.Unlock()
	if due {
		w.logger.Info("worker idle", logging.String(logging.FieldEventType, "worker_idle"))
	}
}

func (w *Worker) recordError(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	w.lastError = err.Error()
	w.mu.Unlock()
}

func (w *Worker) snapshot() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStatus{
		Stage:     w.stage,
		Running:   w.running,
		Processed: w.processed,
		Failed:    w.failed,
		LastError: w.lastError,
		LastItem:  w.lastItem,
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
