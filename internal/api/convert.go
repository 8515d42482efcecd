package api

import (
	"encoding/json"
	"sort"
	"strings"

	"marketintel/internal/queue"
	"marketintel/internal/stage"
	"marketintel/internal/workflow"
)

// FromQueueItem converts a queue item into its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	dto := QueueItem{
		ScopeKey:     item.ScopeKey,
		Stage:        string(item.Stage),
		SequenceKey:  item.SequenceKey,
		Status:       string(item.Status),
		Priority:     string(item.Priority),
		Strategy:     string(item.Strategy),
		RetryCount:   item.RetryCount,
		ErrorMessage: strings.TrimSpace(item.ErrorMessage),
		CreatedAt:    formatTime(item.CreatedAt),
		UpdatedAt:    formatTime(item.UpdatedAt),
	}
	if item.NextAttemptAt != nil {
		dto.NextAttemptAt = formatTime(*item.NextAttemptAt)
	}
	if len(item.Metadata) > 0 {
		dto.Metadata = make(map[string]string, len(item.Metadata))
		for k, v := range item.Metadata {
			dto.Metadata[k] = v
		}
	}
	if raw := strings.TrimSpace(item.PayloadJSON); raw != "" && json.Valid([]byte(raw)) {
		dto.Payload = json.RawMessage(raw)
	}
	return dto
}

// FromQueueItems converts a slice of queue items.
func FromQueueItems(items []*queue.Item) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromQueueItem(item))
	}
	return out
}

// MergeQueueStats converts status counts into string keys, including zero
// entries for every known status.
func MergeQueueStats[M ~map[queue.Status]int](stats M) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] += count
	}
	return out
}

// FromStatusSummary converts the workflow manager status.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:     summary.Running,
		QueueStats:  make(map[string]int),
		StageCounts: make(map[string]map[string]int, len(summary.StageCounts)),
		Workers:     make([]WorkerStatus, 0, len(summary.Workers)),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	for _, s := range queue.AllStatuses() {
		status.QueueStats[string(s)] = 0
	}
	for st, counts := range summary.StageCounts {
		status.StageCounts[string(st)] = MergeQueueStats(counts)
		for s, n := range counts {
			status.QueueStats[string(s)] += n
		}
	}
	for _, w := range summary.Workers {
		status.Workers = append(status.Workers, WorkerStatus{
			Stage:     string(w.Stage),
			Running:   w.Running,
			Processed: w.Processed,
			Failed:    w.Failed,
			LastError: w.LastError,
			LastItem:  w.LastItem,
		})
	}
	return status
}

// StageHealthSlice returns stage health in pipeline order.
func StageHealthSlice(health map[queue.Stage]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for st, h := range health {
		name := h.Name
		if name == "" {
			name = string(st)
		}
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	order := make(map[string]int)
	for i, st := range queue.AllStages() {
		order[string(st)] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, iok := order[out[i].Name]
		oj, jok := order[out[j].Name]
		if iok && jok {
			return oi < oj
		}
		if iok != jok {
			return iok
		}
		return out[i].Name < out[j].Name
	})
	return out
}
