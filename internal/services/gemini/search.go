// Package gemini implements the search capability with Gemini's Google Search
// grounding tool. Every grounding chunk the model cites becomes a candidate
// URL; the model's own text answer is kept as the candidate snippet.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"marketintel/internal/payload"
	"marketintel/internal/services"
)

// Config captures the runtime settings for grounded search.
type Config struct {
	APIKey         string
	Model          string
	TimeoutSeconds int
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Searcher runs grounded searches against Gemini.
type Searcher struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewSearcher constructs a grounded searcher.
func NewSearcher(ctx context.Context, cfg Config) (*Searcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "search", "gemini", "api key required", nil)
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Searcher{client: client, model: cfg.Model, timeout: timeout}, nil
}

// Search implements services.Searcher.
func (s *Searcher) Search(ctx context.Context, req services.SearchRequest) ([]payload.Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	resp, err := s.client.Models.GenerateContent(
		callCtx,
		s.model,
		[]*genai.Content{genai.NewContentFromText(BuildPrompt(req), genai.RoleUser)},
		config,
	)
	if err != nil {
		marker := services.ErrExternalTool
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return nil, services.Wrap(marker, "search", "gemini", "grounded search failed", err)
	}
	return CandidatesFromResponse(resp, req.Source.Name, req.MaxResults), nil
}

// BuildPrompt renders the grounded search instruction for one source.
func BuildPrompt(req services.SearchRequest) string {
	var b strings.Builder
	b.WriteString("You are a market research assistant. Search the web for recent coverage ")
	fmt.Fprintf(&b, "from %s (%s) about: %s.\n", req.Source.Name, req.Source.URL, strings.Join(req.Keywords, ", "))
	if len(req.Queries) > 0 {
		b.WriteString("Use these search queries:\n")
		for _, q := range req.Queries {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}
	b.WriteString("Cite every article you rely on and summarize each in one sentence.")
	return b.String()
}

// CandidatesFromResponse converts grounding chunks into ranked candidates.
// Scores decay with citation order; duplicate URIs keep their first position.
func CandidatesFromResponse(resp *genai.GenerateContentResponse, source string, limit int) []payload.Candidate {
	if resp == nil || len(resp.Candidates) == 0 {
		return []payload.Candidate{}
	}
	first := resp.Candidates[0]
	var answer strings.Builder
	if first.Content != nil {
		for _, part := range first.Content.Parts {
			if part != nil && part.Text != "" {
				answer.WriteString(part.Text)
			}
		}
	}
	snippet := truncate(strings.TrimSpace(answer.String()), 280)

	results := []payload.Candidate{}
	if first.GroundingMetadata == nil {
		return results
	}
	seen := make(map[string]struct{})
	for _, chunk := range first.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uri := strings.TrimSpace(chunk.Web.URI)
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		position := len(results) + 1
		results = append(results, payload.Candidate{
			URL:            uri,
			Title:          strings.TrimSpace(chunk.Web.Title),
			Snippet:        snippet,
			Source:         source,
			RelevanceScore: positionScore(position),
			Position:       position,
		})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results
}

func positionScore(position int) float64 {
	score := 1.0 - 0.05*float64(position-1)
	if score < 0.05 {
		return 0.05
	}
	return score
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
