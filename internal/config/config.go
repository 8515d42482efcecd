package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Workflow contains worker timing and the retry policy.
type Workflow struct {
	PollInterval         int `toml:"poll_interval"`
	BatchSize            int `toml:"batch_size"`
	MaxRetries           int `toml:"max_retries"`
	RetryDelaySeconds    int `toml:"retry_delay_seconds"`
	ItemDelaySeconds     int `toml:"item_delay_seconds"`
	HeartbeatLogInterval int `toml:"heartbeat_log_interval"`
	ErrorRetryInterval   int `toml:"error_retry_interval"`
}

// Search selects the search provider and bounds fan-out to the fetch stage.
type Search struct {
	Provider         string `toml:"provider"`
	MaxURLsPerSearch int    `toml:"max_urls_per_search"`
	MaxResults       int    `toml:"max_results"`
}

// Fetch configures page retrieval for the fetch stage.
type Fetch struct {
	Provider          string  `toml:"provider"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	UserAgent         string  `toml:"user_agent"`
	MaxContentChars   int     `toml:"max_content_chars"`
	Summarize         bool    `toml:"summarize"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Analysis selects the analyzer used by the fetch summary and the three
// analysis stages.
type Analysis struct {
	Provider   string `toml:"provider"`
	PromptMode string `toml:"prompt_mode"`
}

// Anthropic contains Claude API settings.
type Anthropic struct {
	APIKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	MaxTokens         int     `toml:"max_tokens"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// Gemini contains Google Gemini API settings used for grounded search.
type Gemini struct {
	APIKey            string  `toml:"api_key"`
	Model             string  `toml:"model"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// SerpAPI contains settings for the SerpAPI search provider.
type SerpAPI struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	Engine            string  `toml:"engine"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// LLM contains OpenAI-compatible chat completion settings.
type LLM struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	Model             string  `toml:"model"`
	Referer           string  `toml:"referer"`
	Title             string  `toml:"title"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// Blobstore selects where raw and processed artifacts are written.
type Blobstore struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// Metrics toggles the Prometheus endpoint on the daemon API.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for marketintel.
//
// Configuration sections by subsystem:
//   - Paths: queue database, logs and API bind address
//   - Workflow: poll interval, batch size and retry policy
//   - Search, Fetch, Analysis: which provider backs each stage
//   - Anthropic, Gemini, SerpAPI, LLM: provider credentials
//   - Blobstore: artifact storage backend
//   - Metrics: Prometheus exposition
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Workflow  Workflow  `toml:"workflow"`
	Search    Search    `toml:"search"`
	Fetch     Fetch     `toml:"fetch"`
	Analysis  Analysis  `toml:"analysis"`
	Anthropic Anthropic `toml:"anthropic"`
	Gemini    Gemini    `toml:"gemini"`
	SerpAPI   SerpAPI   `toml:"serpapi"`
	LLM       LLM       `toml:"llm"`
	Blobstore Blobstore `toml:"blobstore"`
	Metrics   Metrics   `toml:"metrics"`
	Logging   Logging   `toml:"logging"`
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Blobstore.Backend != BlobBackendNone {
		dirs = append(dirs, c.Blobstore.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueuePath returns the SQLite queue database location.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "marketinteld.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "marketinteld.pid")
}

// APIBaseURL returns the base URL clients use to reach the daemon API.
func (c *Config) APIBaseURL() string {
	bind := strings.TrimSpace(c.Paths.APIBind)
	if bind == "" {
		return ""
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

// PollInterval returns the idle sleep between poll cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// RetryDelay returns the wait before a retry item becomes claimable again.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Workflow.RetryDelaySeconds) * time.Second
}

// ItemDelay returns the pause between items of one batch.
func (c *Config) ItemDelay() time.Duration {
	return time.Duration(c.Workflow.ItemDelaySeconds) * time.Second
}

// HeartbeatLogInterval returns how often an idle worker logs that it is alive.
func (c *Config) HeartbeatLogInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatLogInterval) * time.Second
}

// ErrorRetryInterval returns the backoff after a store error in the poll loop.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}
