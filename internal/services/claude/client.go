// Package claude implements the analysis capability on the Anthropic Messages
// API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"marketintel/internal/services"
)

const defaultMaxTokens = 2048

// Config captures the runtime settings for the Anthropic client.
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int
	TimeoutSeconds int
	// BaseURL overrides the API endpoint; tests point it at an httptest server.
	BaseURL string
}

// Client sends analysis prompts to Claude.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClient constructs a Claude analyzer.
func NewClient(cfg Config, opts ...option.RequestOption) *Client {
	requestOpts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if cfg.TimeoutSeconds > 0 {
		requestOpts = append(requestOpts, option.WithRequestTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(base))
	}
	requestOpts = append(requestOpts, opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		client:    anthropic.NewClient(requestOpts...),
		model:     strings.TrimSpace(cfg.Model),
		maxTokens: int64(maxTokens),
	}
}

// Analyze implements services.Analyzer.
func (c *Client) Analyze(ctx context.Context, req services.AnalyzeRequest) (services.AnalyzeResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return services.AnalyzeResponse{}, services.Wrap(services.ErrValidation, "", "claude", "prompt is empty", nil)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return services.AnalyzeResponse{}, services.Wrap(classify(err), "", "claude", "messages request failed", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	meta := map[string]string{
		"provider":    "claude",
		"model":       string(resp.Model),
		"stop_reason": string(resp.StopReason),
	}
	content := strings.TrimSpace(text.String())
	return services.AnalyzeResponse{Success: content != "", Content: content, Metadata: meta}, nil
}

// HealthCheck sends a one-token request to confirm the key and model work.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("claude health: %w", err)
	}
	return nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.ErrConfiguration
		case http.StatusRequestTimeout:
			return services.ErrTimeout
		default:
			return services.ErrExternalTool
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.ErrTimeout
	}
	return services.ErrTransient
}
