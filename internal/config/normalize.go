package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProviders()
	c.normalizeCredentials()
	if err := c.normalizeBlobstore(); err != nil {
		return err
	}
	c.normalizeMetrics()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = envFirst("MARKETINTEL_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeProviders() {
	c.Search.Provider = lowerTrim(c.Search.Provider, ProviderStatic)
	c.Fetch.Provider = lowerTrim(c.Fetch.Provider, ProviderStatic)
	c.Analysis.Provider = lowerTrim(c.Analysis.Provider, ProviderStatic)
	c.Analysis.PromptMode = lowerTrim(c.Analysis.PromptMode, PromptModeProduction)
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultFetchUserAgent
	}
	if c.Fetch.MaxContentChars <= 0 {
		c.Fetch.MaxContentChars = defaultMaxContentChars
	}
}

func (c *Config) normalizeCredentials() {
	c.Anthropic.APIKey = strings.TrimSpace(c.Anthropic.APIKey)
	if c.Anthropic.APIKey == "" {
		c.Anthropic.APIKey = envFirst("ANTHROPIC_API_KEY")
	}
	c.Anthropic.Model = strings.TrimSpace(c.Anthropic.Model)
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = defaultAnthropicModel
	}
	if c.Anthropic.MaxTokens <= 0 {
		c.Anthropic.MaxTokens = defaultAnthropicMaxTokens
	}

	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = envFirst("GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultGeminiModel
	}

	c.SerpAPI.APIKey = strings.TrimSpace(c.SerpAPI.APIKey)
	if c.SerpAPI.APIKey == "" {
		c.SerpAPI.APIKey = envFirst("SERPAPI_API_KEY")
	}
	c.SerpAPI.BaseURL = strings.TrimSpace(c.SerpAPI.BaseURL)
	if c.SerpAPI.BaseURL == "" {
		c.SerpAPI.BaseURL = defaultSerpAPIBaseURL
	}
	c.SerpAPI.Engine = lowerTrim(c.SerpAPI.Engine, defaultSerpAPIEngine)
	if c.SerpAPI.RequestsPerSecond <= 0 {
		c.SerpAPI.RequestsPerSecond = defaultSerpAPIRate
	}

	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = envFirst("LLM_API_KEY", "OPENROUTER_API_KEY")
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)

	for _, timeout := range []*int{
		&c.Anthropic.TimeoutSeconds,
		&c.Gemini.TimeoutSeconds,
		&c.SerpAPI.TimeoutSeconds,
		&c.LLM.TimeoutSeconds,
	} {
		if *timeout <= 0 {
			*timeout = defaultProviderTimeout
		}
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeoutSeconds
	}
}

func (c *Config) normalizeBlobstore() error {
	c.Blobstore.Backend = lowerTrim(c.Blobstore.Backend, BlobBackendFS)
	if c.Blobstore.Backend == BlobBackendNone {
		return nil
	}
	if strings.TrimSpace(c.Blobstore.Dir) == "" {
		c.Blobstore.Dir = defaultBlobDir
	}
	var err error
	if c.Blobstore.Dir, err = expandPath(c.Blobstore.Dir); err != nil {
		return fmt.Errorf("blobstore.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if len(c.Logging.StageOverrides) > 0 {
		overrides := make(map[string]string, len(c.Logging.StageOverrides))
		for stage, level := range c.Logging.StageOverrides {
			key := strings.ToLower(strings.TrimSpace(stage))
			value := strings.ToLower(strings.TrimSpace(level))
			if key == "" || value == "" {
				continue
			}
			overrides[key] = value
		}
		c.Logging.StageOverrides = overrides
	}
}

func lowerTrim(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

func envFirst(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
