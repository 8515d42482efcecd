package claude_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketintel/internal/services"
	"marketintel/internal/services/claude"
)

func messagesServer(t *testing.T, status int, body map[string]any, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestAnalyzeCollectsTextBlocks(t *testing.T) {
	var seen map[string]any
	server := messagesServer(t, http.StatusOK, map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-test",
		"stop_reason": "end_turn",
		"content": []any{
			map[string]any{"type": "text", "text": "Competitors are "},
			map[string]any{"type": "text", "text": "cutting prices."},
		},
		"usage": map[string]any{"input_tokens": 10, "output_tokens": 5},
	}, &seen)
	defer server.Close()

	client := claude.NewClient(
		claude.Config{APIKey: "test", Model: "claude-test", BaseURL: server.URL},
		option.WithMaxRetries(0),
	)
	resp, err := client.Analyze(context.Background(), services.AnalyzeRequest{
		Kind:         "implication",
		SystemPrompt: "You are a strategist.",
		Prompt:       "What does this mean?",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Competitors are cutting prices.", resp.Content)
	assert.Equal(t, "claude-test", resp.Metadata["model"])
	assert.Equal(t, "claude-test", seen["model"])
	assert.NotNil(t, seen["system"])
}

func TestAnalyzeClassifiesAuthFailure(t *testing.T) {
	server := messagesServer(t, http.StatusUnauthorized, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "authentication_error", "message": "invalid x-api-key"},
	}, nil)
	defer server.Close()

	client := claude.NewClient(
		claude.Config{APIKey: "bad", Model: "claude-test", BaseURL: server.URL},
		option.WithMaxRetries(0),
	)
	_, err := client.Analyze(context.Background(), services.AnalyzeRequest{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestAnalyzeRejectsEmptyPrompt(t *testing.T) {
	client := claude.NewClient(claude.Config{APIKey: "test", Model: "claude-test"})
	_, err := client.Analyze(context.Background(), services.AnalyzeRequest{Prompt: "  "})
	assert.ErrorIs(t, err, services.ErrValidation)
}
