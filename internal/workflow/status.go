package workflow

import (
	"context"

	"marketintel/internal/queue"
	"marketintel/internal/stage"
)

// WorkerStatus reports one worker's activity since the manager started.
type WorkerStatus struct {
	Stage     queue.Stage `json:"stage"`
	Running   bool        `json:"running"`
	Processed int64       `json:"processed"`
	Failed    int64       `json:"failed"`
	LastError string      `json:"last_error,omitempty"`
	LastItem  string      `json:"last_item,omitempty"`
}

// StatusSummary is the manager's view of the pipeline.
type StatusSummary struct {
	Running     bool                              `json:"running"`
	Workers     []WorkerStatus                    `json:"workers"`
	LastError   string                            `json:"last_error,omitempty"`
	StageCounts map[queue.Stage]queue.StageCounts `json:"stage_counts"`
	StageHealth map[queue.Stage]stage.Health      `json:"stage_health"`
}

// Status collects worker state, queue counts and handler health. Queue depth
// gauges are refreshed as a side effect.
func (m *Manager) Status(ctx context.Context) (StatusSummary, error) {
	m.mu.RLock()
	running := m.running
	workers := m.orderedWorkers()
	m.mu.RUnlock()

	summary := StatusSummary{
		Running:     running,
		Workers:     make([]WorkerStatus, 0, len(workers)),
		StageHealth: make(map[queue.Stage]stage.Health, len(workers)),
	}
	for _, w := range workers {
		snap := w.snapshot()
		summary.Workers = append(summary.Workers, snap)
		if snap.LastError != "" {
			summary.LastError = snap.LastError
		}
		summary.StageHealth[w.stage] = w.handler.HealthCheck(ctx)
	}

	counts, err := m.store.StageStats(ctx)
	if err != nil {
		return summary, err
	}
	summary.StageCounts = counts
	for st, byStatus := range counts {
		for _, status := range queue.AllStatuses() {
			m.metrics.SetDepth(string(st), string(status), byStatus[status])
		}
	}
	return summary, nil
}
