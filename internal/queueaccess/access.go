// Package queueaccess gives the CLI one view of the queue whether the daemon
// is running (HTTP API) or not (direct SQLite access).
package queueaccess

import (
	"context"

	"marketintel/internal/api"
	"marketintel/internal/daemonctl"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
)

// Access provides queue operations regardless of API or direct store backing.
type Access interface {
	Submit(ctx context.Context, req payload.Request) (api.SubmitResult, error)
	Report(ctx context.Context, scope string) (api.ScopeReport, error)
	Tree(ctx context.Context, scope string) ([]api.QueueItem, error)
	List(ctx context.Context, filter queue.ListFilter) ([]api.QueueItem, error)
	Stats(ctx context.Context) (map[string]int, error)
	Health(ctx context.Context) (queue.DatabaseHealth, error)
	// Remote reports whether operations go through the daemon.
	Remote() bool
}

// NewAPIAccess returns an Access backed by the daemon HTTP API.
func NewAPIAccess(client *daemonctl.Client) Access {
	return &apiAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store, service: api.NewQueueService(store, nil)}
}

type apiAccess struct {
	client *daemonctl.Client
}

func (a *apiAccess) Submit(ctx context.Context, req payload.Request) (api.SubmitResult, error) {
	return a.client.Submit(ctx, req)
}

func (a *apiAccess) Report(ctx context.Context, scope string) (api.ScopeReport, error) {
	return a.client.Report(ctx, scope)
}

func (a *apiAccess) Tree(ctx context.Context, scope string) ([]api.QueueItem, error) {
	return a.client.Tree(ctx, scope)
}

func (a *apiAccess) List(ctx context.Context, filter queue.ListFilter) ([]api.QueueItem, error) {
	return a.client.List(ctx, filter)
}

func (a *apiAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.client.Stats(ctx)
}

func (a *apiAccess) Health(ctx context.Context) (queue.DatabaseHealth, error) {
	return a.client.Health(ctx)
}

func (a *apiAccess) Remote() bool { return true }

type storeAccess struct {
	store   *queue.Store
	service *api.QueueService
}

func (a *storeAccess) Submit(ctx context.Context, req payload.Request) (api.SubmitResult, error) {
	return a.service.Submit(ctx, req)
}

func (a *storeAccess) Report(ctx context.Context, scope string) (api.ScopeReport, error) {
	return a.service.Report(ctx, scope)
}

func (a *storeAccess) Tree(ctx context.Context, scope string) ([]api.QueueItem, error) {
	return a.service.Tree(ctx, scope)
}

func (a *storeAccess) List(ctx context.Context, filter queue.ListFilter) ([]api.QueueItem, error) {
	return a.service.List(ctx, filter)
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) Health(ctx context.Context) (queue.DatabaseHealth, error) {
	return a.store.CheckHealth(ctx)
}

func (a *storeAccess) Remote() bool { return false }
