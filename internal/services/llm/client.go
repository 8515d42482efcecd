package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"marketintel/internal/services"
)

const (
	defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	defaultTimeout  = 15 * time.Second
	analysisTemp    = 0.2
)

// Config captures the runtime settings required to talk to the chat endpoint.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client wraps an OpenAI-compatible chat completion API such as OpenRouter.
type Client struct {
	cfg    Config
	http   *http.Client
	policy retryPolicy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetries sets how many requests a single completion may issue.
func WithRetries(attempts int) Option {
	return func(c *Client) { c.policy.attempts = attempts }
}

// WithBackoff overrides the first and largest retry delay.
func WithBackoff(first, ceiling time.Duration) Option {
	return func(c *Client) {
		c.policy.first = first
		c.policy.ceiling = ceiling
	}
}

// WithWait replaces the retry wait; tests use it to record delays.
func WithWait(wait func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if wait != nil {
			c.policy.wait = wait
		}
	}
}

// NewClient constructs a chat client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		policy: defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the prompts and returns the first non-empty completion text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case userPrompt == "":
		return "", errors.New("llm complete: user prompt required")
	case c.cfg.APIKey == "":
		return "", errors.New("llm complete: api key required")
	}
	body := chatRequest{Model: c.cfg.Model, Temperature: analysisTemp}
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: sys})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: userPrompt})

	attempt := 0
	for {
		attempt++
		text, err := c.completeOnce(ctx, body)
		if err == nil {
			return text, nil
		}
		delay, again := c.policy.next(ctx, attempt, err)
		if !again {
			if attempt > 1 {
				return "", fmt.Errorf("llm complete: gave up after %d attempts: %w", attempt, err)
			}
			return "", err
		}
		if err := c.policy.wait(ctx, delay); err != nil {
			return "", err
		}
	}
}

// Analyze implements services.Analyzer. Transport and HTTP failures are
// returned as errors; an empty completion is reported as an unsuccessful
// response so the analysis stage can record it.
func (c *Client) Analyze(ctx context.Context, req services.AnalyzeRequest) (services.AnalyzeResponse, error) {
	meta := map[string]string{"model": c.cfg.Model, "provider": "llm"}
	text, err := c.Complete(ctx, req.SystemPrompt, req.Prompt)
	if err == nil {
		return services.AnalyzeResponse{Success: true, Content: text, Metadata: meta}, nil
	}
	var blank *blankCompletionError
	if errors.As(err, &blank) {
		meta["finish_reason"] = blank.FinishReason
		return services.AnalyzeResponse{Success: false, Metadata: meta}, nil
	}
	return services.AnalyzeResponse{}, services.Wrap(errorKind(err), "", "llm", "chat completion failed", err)
}

// HealthCheck issues a one-word ping to verify the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "", "llm health", "api key required", nil)
	}
	reply, err := c.Complete(ctx, "Answer with a single word.", "Reply with OK")
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToLower(reply), "ok") {
		return fmt.Errorf("llm health: unexpected reply %s", snippet(reply))
	}
	return nil
}

func errorKind(err error) error {
	var status *statusError
	switch {
	case errors.As(err, &status):
		switch status.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.ErrConfiguration
		case http.StatusRequestTimeout:
			return services.ErrTimeout
		}
		return services.ErrExternalTool
	case errors.Is(err, context.DeadlineExceeded):
		return services.ErrTimeout
	default:
		return services.ErrTransient
	}
}
