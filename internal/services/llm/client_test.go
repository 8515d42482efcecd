package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"marketintel/internal/services"
)

// scriptedServer answers each request with the next reply; the last reply repeats.
func scriptedServer(t *testing.T, replies ...func(http.ResponseWriter)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		replies[n](w)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func choice(fields map[string]any) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{fields}})
	}
}

func text(content string) func(http.ResponseWriter) {
	return choice(map[string]any{"finish_reason": "stop", "message": map[string]any{"content": content}})
}

func status(code int, retryAfter string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		if retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		w.WriteHeader(code)
	}
}

func recordWaits(into *[]time.Duration) Option {
	return WithWait(func(_ context.Context, d time.Duration) error {
		*into = append(*into, d)
		return nil
	})
}

func TestAnalyzeSendsPromptsAndReportsModel(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("authorization header = %q", auth)
		}
		if title := r.Header.Get("X-Title"); title != "marketintel" {
			t.Errorf("title header = %q", title)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		text("Biosimilar uptake is accelerating.")(w)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "router/model", Title: "marketintel"})
	resp, err := client.Analyze(context.Background(), services.AnalyzeRequest{
		Kind:         "insight",
		SystemPrompt: "You are a market analyst.",
		Prompt:       "Extract insights.",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !resp.Success || resp.Content != "Biosimilar uptake is accelerating." {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Metadata["model"] != "router/model" || resp.Metadata["provider"] != "llm" {
		t.Fatalf("metadata = %v", resp.Metadata)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Extract insights." {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.Model != "router/model" {
		t.Fatalf("model = %q", got.Model)
	}
}

func TestAnalyzeBlankCompletionIsUnsuccessful(t *testing.T) {
	server, calls := scriptedServer(t, choice(map[string]any{
		"finish_reason": "length",
		"message":       map[string]any{"content": "  "},
	}))
	client := NewClient(Config{APIKey: "key", BaseURL: server.URL}, WithRetries(2), WithBackoff(0, 0))

	resp, err := client.Analyze(context.Background(), services.AnalyzeRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.Success || resp.Metadata["finish_reason"] != "length" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected blank completion to be retried once, got %d calls", calls.Load())
	}
}

func TestAnalyzeClassifiesRejectedKey(t *testing.T) {
	server, calls := scriptedServer(t, status(http.StatusForbidden, ""))
	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})

	_, err := client.Analyze(context.Background(), services.AnalyzeRequest{Prompt: "x"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if services.IsPermanent(err) {
		t.Fatal("provider failures stay retryable for the queue")
	}
	if calls.Load() != 1 {
		t.Fatalf("403 must not be retried in-request, got %d calls", calls.Load())
	}
}

func TestCompleteHonoursRetryAfter(t *testing.T) {
	server, calls := scriptedServer(t, status(http.StatusTooManyRequests, "3"), text("done"))
	var waits []time.Duration
	client := NewClient(Config{APIKey: "key", BaseURL: server.URL}, recordWaits(&waits), WithBackoff(time.Second, 10*time.Second))

	out, err := client.Complete(context.Background(), "", "summarize")
	if err != nil || out != "done" {
		t.Fatalf("Complete = %q, %v", out, err)
	}
	if calls.Load() != 2 || len(waits) != 1 || waits[0] != 3*time.Second {
		t.Fatalf("calls=%d waits=%v", calls.Load(), waits)
	}
}

func TestCompleteBacksOffExponentiallyOnServerErrors(t *testing.T) {
	server, calls := scriptedServer(t, status(502, ""), status(503, ""), status(500, ""), text("recovered"))
	var waits []time.Duration
	client := NewClient(Config{APIKey: "key", BaseURL: server.URL}, recordWaits(&waits), WithBackoff(time.Second, 3*time.Second))

	out, err := client.Complete(context.Background(), "", "summarize")
	if err != nil || out != "recovered" {
		t.Fatalf("Complete = %q, %v", out, err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if calls.Load() != 4 || len(waits) != len(want) {
		t.Fatalf("calls=%d waits=%v", calls.Load(), waits)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("waits = %v, want %v", waits, want)
		}
	}
}

func TestCompleteGivesUpAfterAttempts(t *testing.T) {
	server, calls := scriptedServer(t, status(500, ""))
	client := NewClient(Config{APIKey: "key", BaseURL: server.URL}, WithRetries(3), WithBackoff(0, 0))

	_, err := client.Complete(context.Background(), "", "summarize")
	if err == nil || !strings.Contains(err.Error(), "gave up after 3 attempts") {
		t.Fatalf("expected give-up error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestCompleteAcceptsDeltaAndLegacyShapes(t *testing.T) {
	for name, reply := range map[string]map[string]any{
		"delta":  {"delta": map[string]any{"content": "from delta"}},
		"legacy": {"text": "from text"},
	} {
		t.Run(name, func(t *testing.T) {
			server, _ := scriptedServer(t, choice(reply))
			out, err := NewClient(Config{APIKey: "key", BaseURL: server.URL}).Complete(context.Background(), "", "x")
			if err != nil || !strings.HasPrefix(out, "from ") {
				t.Fatalf("Complete = %q, %v", out, err)
			}
		})
	}
}

func TestCompleteRequiresKeyAndPrompt(t *testing.T) {
	if _, err := NewClient(Config{}).Complete(context.Background(), "", "x"); err == nil {
		t.Fatal("expected missing key error")
	}
	if _, err := NewClient(Config{APIKey: "key"}).Complete(context.Background(), "sys", " "); err == nil {
		t.Fatal("expected missing prompt error")
	}
}

func TestHealthCheck(t *testing.T) {
	ok, _ := scriptedServer(t, text("OK"))
	if err := NewClient(Config{APIKey: "key", BaseURL: ok.URL}).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	odd, _ := scriptedServer(t, text("banana"))
	if err := NewClient(Config{APIKey: "key", BaseURL: odd.URL}).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected unexpected-reply error")
	}
	if err := NewClient(Config{}).HealthCheck(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRetryAfterParsing(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if d, ok := retryAfter("7", now); !ok || d != 7*time.Second {
		t.Fatalf("seconds form = %v %v", d, ok)
	}
	if d, ok := retryAfter(now.Add(time.Minute).Format(http.TimeFormat), now); !ok || d != time.Minute {
		t.Fatalf("date form = %v %v", d, ok)
	}
	if _, ok := retryAfter("soon", now); ok {
		t.Fatal("garbage header accepted")
	}
}
