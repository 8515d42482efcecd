package workflow

import (
	"context"
	"time"

	"marketintel/internal/queue"
)

// QueueStore is the subset of the queue the workers depend on.
type QueueStore interface {
	Put(ctx context.Context, item *queue.Item) (*queue.Item, error)
	Get(ctx context.Context, key queue.Key) (*queue.Item, error)
	Scan(ctx context.Context, stage queue.Stage, statuses []queue.Status, limit int, now time.Time) ([]*queue.Item, error)
	Claim(ctx context.Context, key queue.Key) (*queue.Item, error)
	Complete(ctx context.Context, key queue.Key, payloadJSON string) error
	RecordFailure(ctx context.Context, key queue.Key, failure queue.Failure) error
	StageStats(ctx context.Context) (map[queue.Stage]queue.StageCounts, error)
	ScopeStats(ctx context.Context, scope string) (map[queue.Stage]queue.StageCounts, error)
}

var _ QueueStore = (*queue.Store)(nil)
