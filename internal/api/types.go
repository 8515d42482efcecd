package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a work item in a transport-friendly format.
type QueueItem struct {
	ScopeKey      string            `json:"scopeKey"`
	Stage         string            `json:"stage"`
	SequenceKey   string            `json:"sequenceKey"`
	Status        string            `json:"status"`
	Priority      string            `json:"priority"`
	Strategy      string            `json:"strategy"`
	RetryCount    int               `json:"retryCount"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	NextAttemptAt string            `json:"nextAttemptAt,omitempty"`
	CreatedAt     string            `json:"createdAt,omitempty"`
	UpdatedAt     string            `json:"updatedAt,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
}

// SubmitResult acknowledges an accepted submission.
type SubmitResult struct {
	ScopeKey    string `json:"scopeKey"`
	SequenceKey string `json:"sequenceKey"`
	AcceptedAt  string `json:"acceptedAt"`
}

// ScopeReport summarizes the progress of one submission.
type ScopeReport struct {
	ScopeKey  string                    `json:"scopeKey"`
	ProjectID string                    `json:"projectId"`
	RequestID string                    `json:"requestId"`
	Stages    map[string]map[string]int `json:"stages"`
	Total     int                       `json:"total"`
	Failed    int                       `json:"failed"`
	Done      bool                      `json:"done"`
}

// WorkerStatus mirrors one stage worker.
type WorkerStatus struct {
	Stage     string `json:"stage"`
	Running   bool   `json:"running"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	LastError string `json:"lastError,omitempty"`
	LastItem  string `json:"lastItem,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool                      `json:"running"`
	QueueStats  map[string]int            `json:"queueStats"`
	StageCounts map[string]map[string]int `json:"stageCounts"`
	Workers     []WorkerStatus            `json:"workers"`
	LastError   string                    `json:"lastError,omitempty"`
	StageHealth []StageHealth             `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	APIAddress   string         `json:"apiAddress,omitempty"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueListResponse wraps a collection of queue items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
