// Package serpapi implements the search capability on SerpAPI's JSON search
// endpoint. One request is issued per generated query; organic results are
// merged across queries and ranked by their best position.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"marketintel/internal/payload"
	"marketintel/internal/services"
)

// Config captures the runtime settings for SerpAPI.
type Config struct {
	APIKey            string
	BaseURL           string
	Engine            string
	RequestsPerSecond float64
	TimeoutSeconds    int
}

// Client queries SerpAPI.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a SerpAPI searcher.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "google"
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    services.NewLimiter(cfg.RequestsPerSecond, 1),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type searchResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
	} `json:"organic_results"`
}

// Search implements services.Searcher.
func (c *Client) Search(ctx context.Context, req services.SearchRequest) ([]payload.Candidate, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "search", "serpapi", "api key required", nil)
	}
	queries := req.Queries
	if len(queries) == 0 {
		queries = req.Keywords
	}

	type ranked struct {
		candidate payload.Candidate
		order     int
	}
	byURL := make(map[string]*ranked)
	order := 0
	for _, query := range queries {
		resp, err := c.query(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, result := range resp.OrganicResults {
			link := strings.TrimSpace(result.Link)
			if link == "" {
				continue
			}
			if existing, ok := byURL[link]; ok {
				if result.Position > 0 && result.Position < existing.candidate.Position {
					existing.candidate.Position = result.Position
				}
				continue
			}
			byURL[link] = &ranked{
				candidate: payload.Candidate{
					URL:      link,
					Title:    strings.TrimSpace(result.Title),
					Snippet:  strings.TrimSpace(result.Snippet),
					Source:   req.Source.Name,
					Position: result.Position,
				},
				order: order,
			}
			order++
		}
	}

	merged := make([]*ranked, 0, len(byURL))
	for _, r := range byURL {
		merged = append(merged, r)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].candidate.Position != merged[j].candidate.Position {
			return merged[i].candidate.Position < merged[j].candidate.Position
		}
		return merged[i].order < merged[j].order
	})
	if req.MaxResults > 0 && len(merged) > req.MaxResults {
		merged = merged[:req.MaxResults]
	}
	results := make([]payload.Candidate, 0, len(merged))
	for _, r := range merged {
		candidate := r.candidate
		if candidate.Position > 0 {
			candidate.RelevanceScore = 1 / float64(candidate.Position)
		}
		results = append(results, candidate)
	}
	return results, nil
}

func (c *Client) query(ctx context.Context, query string) (searchResponse, error) {
	var out searchResponse
	if err := c.limiter.Wait(ctx); err != nil {
		return out, services.Wrap(services.ErrTimeout, "search", "serpapi", "rate limit wait", err)
	}
	params := url.Values{}
	params.Set("engine", c.cfg.Engine)
	params.Set("q", query)
	params.Set("api_key", c.cfg.APIKey)
	endpoint := c.cfg.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, fmt.Errorf("serpapi request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, services.Wrap(services.ErrTransient, "search", "serpapi", "http request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return out, services.Wrap(services.ErrTransient, "search", "serpapi", "read body", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return out, services.Wrap(services.ErrConfiguration, "search", "serpapi", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return out, services.Wrap(services.ErrExternalTool, "search", "serpapi", fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, services.Wrap(services.ErrExternalTool, "search", "serpapi", "decode response", err)
	}
	// SerpAPI reports "no results" as an error string on a 200.
	if out.Error != "" && !strings.Contains(strings.ToLower(out.Error), "hasn't returned any results") {
		return out, services.Wrap(services.ErrExternalTool, "search", "serpapi", out.Error, nil)
	}
	return out, nil
}
