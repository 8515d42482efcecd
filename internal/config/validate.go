package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateBlobstore(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":          c.Workflow.PollInterval,
		"workflow.batch_size":             c.Workflow.BatchSize,
		"workflow.max_retries":            c.Workflow.MaxRetries,
		"workflow.heartbeat_log_interval": c.Workflow.HeartbeatLogInterval,
		"workflow.error_retry_interval":   c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.RetryDelaySeconds < 0 || c.Workflow.RetryDelaySeconds > maxRetryDelaySeconds {
		return fmt.Errorf("workflow.retry_delay_seconds must be between 0 and %d", maxRetryDelaySeconds)
	}
	if c.Workflow.ItemDelaySeconds < 0 {
		return errors.New("workflow.item_delay_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateSearch() error {
	if c.Search.MaxURLsPerSearch <= 0 {
		return errors.New("search.max_urls_per_search must be positive")
	}
	if c.Search.MaxResults <= 0 {
		return errors.New("search.max_results must be positive")
	}
	switch c.Search.Provider {
	case ProviderStatic:
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return c.missingKey("gemini.api_key", "GEMINI_API_KEY", "search.provider = \"gemini\"")
		}
	case ProviderSerpAPI:
		if c.SerpAPI.APIKey == "" {
			return c.missingKey("serpapi.api_key", "SERPAPI_API_KEY", "search.provider = \"serpapi\"")
		}
	default:
		return fmt.Errorf("search.provider: unsupported value %q (use static, gemini or serpapi)", c.Search.Provider)
	}
	return nil
}

func (c *Config) validateFetch() error {
	switch c.Fetch.Provider {
	case ProviderStatic, ProviderWeb:
		return nil
	default:
		return fmt.Errorf("fetch.provider: unsupported value %q (use static or web)", c.Fetch.Provider)
	}
}

func (c *Config) validateAnalysis() error {
	switch c.Analysis.PromptMode {
	case PromptModeProduction, PromptModeDevelopment:
	default:
		return fmt.Errorf("analysis.prompt_mode: unsupported value %q (use production or development)", c.Analysis.PromptMode)
	}
	switch c.Analysis.Provider {
	case ProviderStatic:
	case ProviderClaude:
		if c.Anthropic.APIKey == "" {
			return c.missingKey("anthropic.api_key", "ANTHROPIC_API_KEY", "analysis.provider = \"claude\"")
		}
	case ProviderLLM:
		if c.LLM.APIKey == "" {
			return c.missingKey("llm.api_key", "OPENROUTER_API_KEY", "analysis.provider = \"llm\"")
		}
	default:
		return fmt.Errorf("analysis.provider: unsupported value %q (use static, claude or llm)", c.Analysis.Provider)
	}
	return nil
}

func (c *Config) validateBlobstore() error {
	switch c.Blobstore.Backend {
	case BlobBackendNone, BlobBackendFS, BlobBackendBadger:
		return nil
	default:
		return fmt.Errorf("blobstore.backend: unsupported value %q (use none, fs or badger)", c.Blobstore.Backend)
	}
}

func (c *Config) validateLogging() error {
	for stage, level := range c.Logging.StageOverrides {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s: unsupported level %q", stage, level)
		}
	}
	return nil
}

func (c *Config) missingKey(field, env, when string) error {
	path, err := DefaultConfigPath()
	if err != nil {
		path = defaultConfigPath
	}
	return fmt.Errorf("%s is required when %s. Set %s or edit %s (create with 'marketintel config init')", field, when, env, path)
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
