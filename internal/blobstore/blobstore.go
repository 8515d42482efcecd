// Package blobstore persists raw and processed stage artifacts outside the
// queue database. Work items keep only the returned locator.
//
// Objects are laid out as
//
//	raw-content/<project>/<request>/search/<name>.json
//	raw-content/<project>/<request>/content/<name>.json
//	processed/<project>/<request>/<kind>/<name>.json
//
// regardless of backend. FS writes them as files under a root directory;
// Badger stores them as keys in an embedded database.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketintel/internal/config"
	"marketintel/internal/queue"
)

// ErrNotFound is returned by Get when no object exists for a locator.
var ErrNotFound = errors.New("blob not found")

// Category selects the top-level prefix and the per-request subdirectory.
type Category struct {
	Root string
	Sub  string
}

var (
	// SearchResults holds the raw candidate list of a search item.
	SearchResults = Category{Root: "raw-content", Sub: "search"}
	// PageContent holds the fetched page digest of a fetch item.
	PageContent = Category{Root: "raw-content", Sub: "content"}
)

// Processed returns the category for one analysis kind.
func Processed(kind string) Category {
	return Category{Root: "processed", Sub: kind}
}

// Store writes and reads artifacts.
type Store interface {
	Put(ctx context.Context, scope string, category Category, name string, data []byte) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
	Close() error
}

// ObjectKey builds the relative object path for an artifact.
func ObjectKey(scope string, category Category, name string) (string, error) {
	project, request, ok := queue.SplitScopeKey(scope)
	if !ok {
		return "", fmt.Errorf("blobstore: invalid scope key %q", scope)
	}
	parts := []string{category.Root, project, request, category.Sub, sanitize(name) + ".json"}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" || part == ".json" {
			return "", fmt.Errorf("blobstore: incomplete object key %v", parts)
		}
	}
	return strings.Join([]string{category.Root, sanitize(project), sanitize(request), sanitize(category.Sub), sanitize(name) + ".json"}, "/"), nil
}

// sanitize keeps keys filesystem safe; sequence keys contain '#'.
func sanitize(value string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "#", "_", "..", "_", " ", "_")
	return replacer.Replace(strings.TrimSpace(value))
}

// Open builds the backend selected in config. It returns nil when the blob
// store is disabled.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Blobstore.Backend {
	case config.BlobBackendNone:
		return nil, nil
	case config.BlobBackendFS:
		return NewFS(cfg.Blobstore.Dir)
	case config.BlobBackendBadger:
		return OpenBadger(cfg.Blobstore.Dir)
	default:
		return nil, fmt.Errorf("blobstore: unsupported backend %q", cfg.Blobstore.Backend)
	}
}
