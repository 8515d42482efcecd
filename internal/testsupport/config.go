package testsupport

import (
	"path/filepath"
	"testing"

	"marketintel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Providers are static, the blob store is disabled and timings are shortened
// so workflow tests run in milliseconds.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Workflow.PollInterval = 1
	cfgVal.Workflow.RetryDelaySeconds = 0
	cfgVal.Workflow.HeartbeatLogInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Blobstore.Backend = config.BlobBackendNone
	cfgVal.Blobstore.Dir = filepath.Join(base, "blobs")
	cfgVal.Metrics.Enabled = false
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxRetries = n
	}
}

// WithURLCap overrides how many search results fan out to fetch.
func WithURLCap(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Search.MaxURLsPerSearch = n
	}
}

// WithBlobBackend enables a blob store backend rooted in the test directory.
func WithBlobBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Blobstore.Backend = backend
	}
}

// WithAPIToken sets the bearer token required by the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
