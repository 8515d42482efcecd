package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRetry      Status = "retry"
)

// MaxRetriesExceeded is the error message recorded when an item exhausts its retries
// without a more specific cause.
const MaxRetriesExceeded = "Max retries exceeded"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusRetry,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusRetry:      {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusRetry, StatusFailed},
}

// ClaimableStatuses are the statuses a worker may move to processing.
func ClaimableStatuses() []Status {
	return []Status{StatusPending, StatusRetry}
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string to a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving an item from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority is an ordinal hint propagated unchanged to descendants.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Strategy is an opaque processing-strategy tag propagated to descendants.
type Strategy string

const (
	StrategyTable  Strategy = "table"
	StrategyStream Strategy = "stream"
	StrategyBatch  Strategy = "batch"
)

// Key identifies one work item row.
type Key struct {
	ScopeKey    string
	Stage       Stage
	SequenceKey string
}

func (k Key) String() string {
	return k.ScopeKey + "/" + string(k.Stage) + "/" + k.SequenceKey
}

// Item represents a work item persisted in SQLite.
type Item struct {
	ScopeKey      string
	Stage         Stage
	SequenceKey   string
	Status        Status
	Priority      Priority
	Strategy      Strategy
	PayloadJSON   string
	Metadata      map[string]string
	RetryCount    int
	ErrorMessage  string
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the composite identifier of the item.
func (i Item) Key() Key {
	return Key{ScopeKey: i.ScopeKey, Stage: i.Stage, SequenceKey: i.SequenceKey}
}

// Clone returns a deep copy so callers can mutate metadata without aliasing.
func (i Item) Clone() *Item {
	out := i
	if i.Metadata != nil {
		out.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			out.Metadata[k] = v
		}
	}
	if i.NextAttemptAt != nil {
		t := *i.NextAttemptAt
		out.NextAttemptAt = &t
	}
	return &out
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Retry      int
	Failed     int
	Completed  int
}

// StageCounts maps status to item count for one stage.
type StageCounts map[Status]int

// Total sums the counts across statuses.
func (c StageCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Terminal reports whether every counted item is completed or failed.
func (c StageCounts) Terminal() bool {
	for status, n := range c {
		if n > 0 && !status.IsTerminal() {
			return false
		}
	}
	return true
}
