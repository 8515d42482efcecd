package config

// Provider names accepted by the [search], [fetch] and [analysis] sections.
const (
	ProviderStatic  = "static"
	ProviderGemini  = "gemini"
	ProviderSerpAPI = "serpapi"
	ProviderWeb     = "web"
	ProviderClaude  = "claude"
	ProviderLLM     = "llm"
)

// Blob store backends.
const (
	BlobBackendNone   = "none"
	BlobBackendFS     = "fs"
	BlobBackendBadger = "badger"
)

// Prompt modes for the per-URL analysis prompt.
const (
	PromptModeProduction  = "production"
	PromptModeDevelopment = "development"
)

const (
	defaultConfigPath           = "~/.config/marketintel/config.toml"
	defaultDataDir              = "~/.local/share/marketintel"
	defaultLogDir               = "~/.local/share/marketintel/logs"
	defaultBlobDir              = "~/.local/share/marketintel/blobs"
	defaultAPIBind              = "127.0.0.1:7489"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultPollInterval         = 5
	defaultBatchSize            = 10
	defaultMaxRetries           = 3
	defaultRetryDelaySeconds    = 30
	maxRetryDelaySeconds        = 600
	defaultHeartbeatLogInterval = 60
	defaultErrorRetryInterval   = 10
	defaultMaxURLsPerSearch     = 3
	defaultMaxResults           = 10
	defaultFetchTimeoutSeconds  = 30
	defaultFetchUserAgent       = "marketintel/dev (+https://github.com/marketintel)"
	defaultMaxContentChars      = 20000
	defaultAnthropicModel       = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens   = 2048
	defaultGeminiModel          = "gemini-2.5-flash"
	defaultSerpAPIBaseURL       = "https://serpapi.com/search.json"
	defaultSerpAPIEngine        = "google"
	defaultSerpAPIRate          = 1.0
	defaultProviderTimeout      = 60
	defaultLLMBaseURL           = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel             = "google/gemini-3-flash-preview"
	defaultLLMReferer           = "https://github.com/marketintel"
	defaultLLMTitle             = "marketintel"
	defaultMetricsPath          = "/metrics"
	defaultFetchRate            = 2.0
	defaultAnthropicRate        = 2.0
	defaultGeminiRate           = 1.0
	defaultLLMRate              = 2.0
)

// Default returns a Config populated with repository defaults. Providers
// default to the static implementations so a fresh install runs offline.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Workflow: Workflow{
			PollInterval:         defaultPollInterval,
			BatchSize:            defaultBatchSize,
			MaxRetries:           defaultMaxRetries,
			RetryDelaySeconds:    defaultRetryDelaySeconds,
			HeartbeatLogInterval: defaultHeartbeatLogInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
		},
		Search: Search{
			Provider:         ProviderStatic,
			MaxURLsPerSearch: defaultMaxURLsPerSearch,
			MaxResults:       defaultMaxResults,
		},
		Fetch: Fetch{
			Provider:          ProviderStatic,
			TimeoutSeconds:    defaultFetchTimeoutSeconds,
			UserAgent:         defaultFetchUserAgent,
			MaxContentChars:   defaultMaxContentChars,
			Summarize:         true,
			RequestsPerSecond: defaultFetchRate,
		},
		Analysis: Analysis{
			Provider:   ProviderStatic,
			PromptMode: PromptModeProduction,
		},
		Anthropic: Anthropic{
			Model:             defaultAnthropicModel,
			MaxTokens:         defaultAnthropicMaxTokens,
			RequestsPerSecond: defaultAnthropicRate,
			TimeoutSeconds:    defaultProviderTimeout,
		},
		Gemini: Gemini{
			Model:             defaultGeminiModel,
			RequestsPerSecond: defaultGeminiRate,
			TimeoutSeconds:    defaultProviderTimeout,
		},
		SerpAPI: SerpAPI{
			BaseURL:           defaultSerpAPIBaseURL,
			Engine:            defaultSerpAPIEngine,
			RequestsPerSecond: defaultSerpAPIRate,
			TimeoutSeconds:    defaultProviderTimeout,
		},
		LLM: LLM{
			BaseURL:           defaultLLMBaseURL,
			Model:             defaultLLMModel,
			Referer:           defaultLLMReferer,
			Title:             defaultLLMTitle,
			RequestsPerSecond: defaultLLMRate,
			TimeoutSeconds:    defaultProviderTimeout,
		},
		Blobstore: Blobstore{
			Backend: BlobBackendFS,
			Dir:     defaultBlobDir,
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
