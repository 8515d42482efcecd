package stage

import (
	"context"

	"marketintel/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
//
// Execute mutates item.PayloadJSON in place; the worker persists it on both
// success and failure. PrepareDownstream is called once per downstream stage
// after the item completed and returns the documents to enqueue there. When it
// also returns an error, the successors it did produce are still enqueued.
type Handler interface {
	Execute(context.Context, *queue.Item) error
	PrepareDownstream(ctx context.Context, item *queue.Item, next queue.Stage) ([]Successor, error)
	HealthCheck(context.Context) Health
}

// Successor is one downstream document produced by fan-out. Metadata is
// merged over the parent's metadata.
type Successor struct {
	PayloadJSON string
	Metadata    map[string]string
}

// Health is a stage's readiness as reported by its capability probes.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

// Unhealthy records why name cannot process items right now.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}
