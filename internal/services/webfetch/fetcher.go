// Package webfetch implements the summary capability by downloading the page,
// extracting its main content and optionally asking an analyzer to digest it.
//
// Extraction tries article/main selectors first and falls back to
// go-readability when they yield too little text. The extracted HTML is
// converted to markdown and stored as the summary's main content.
package webfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"marketintel/internal/payload"
	"marketintel/internal/services"
)

const (
	maxBodyBytes        = 8 << 20
	minSelectorTextSize = 200
	defaultExcerptChars = 600
)

var contentSelectors = []string{"article", "main", "[role='main']", "#content", ".post-content", ".entry-content"}

// Config captures fetch settings.
type Config struct {
	TimeoutSeconds  int
	UserAgent       string
	MaxContentChars int
}

// Fetcher downloads and digests web pages.
type Fetcher struct {
	cfg        Config
	httpClient *http.Client
	analyzer   services.Analyzer
}

// Option customizes the fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithAnalyzer summarizes extracted content with the given analyzer instead
// of returning a plain excerpt.
func WithAnalyzer(analyzer services.Analyzer) Option {
	return func(f *Fetcher) {
		f.analyzer = analyzer
	}
}

// New constructs a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &Fetcher{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Page is the structured result of extracting one document.
type Page struct {
	Title       string
	Markdown    string
	Text        string
	PublishDate string
	Category    string
}

// Summarize implements services.Summarizer.
func (f *Fetcher) Summarize(ctx context.Context, req services.SummaryRequest) (payload.Summary, error) {
	body, finalURL, err := f.download(ctx, req.URL)
	if err != nil {
		return payload.Summary{}, err
	}
	page, err := Extract(body, finalURL)
	if err != nil {
		return payload.Summary{}, services.Wrap(services.ErrExternalTool, "fetch", "extract", "parse html", err)
	}
	if page.Title == "" {
		page.Title = strings.TrimSpace(req.Title)
	}
	content := truncate(page.Markdown, f.cfg.MaxContentChars)

	summary := payload.Summary{
		Title:       page.Title,
		MainContent: content,
		PublishDate: page.PublishDate,
		Category:    page.Category,
		Response:    truncate(page.Text, defaultExcerptChars),
	}
	if f.analyzer == nil || content == "" {
		return summary, nil
	}

	resp, err := f.analyzer.Analyze(ctx, services.AnalyzeRequest{
		Kind:         "summary",
		SystemPrompt: "You summarize web articles for a market intelligence team. Be factual and concise.",
		Prompt:       req.Prompt + "\n\nArticle content:\n" + content,
	})
	if err != nil {
		return payload.Summary{}, err
	}
	if resp.Success && strings.TrimSpace(resp.Content) != "" {
		summary.Response = strings.TrimSpace(resp.Content)
		summary.Model = resp.Metadata["model"]
	}
	return summary, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, "", services.Wrap(services.ErrValidation, "fetch", "download", fmt.Sprintf("invalid url %q", rawURL), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		marker := services.ErrTransient
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return nil, "", services.Wrap(marker, "fetch", "download", parsed.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, "", services.Wrap(services.ErrNotFound, "fetch", "download", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", services.Wrap(services.ErrExternalTool, "fetch", "download", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", services.Wrap(services.ErrTransient, "fetch", "download", "read body", err)
	}
	return body, resp.Request.URL.String(), nil
}

// Extract pulls title, publish date, category and main content out of an
// HTML document.
func Extract(body []byte, pageURL string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, err
	}
	page := Page{
		Title:       firstNonEmpty(metaContent(doc, "og:title"), strings.TrimSpace(doc.Find("title").First().Text())),
		PublishDate: firstNonEmpty(metaContent(doc, "article:published_time"), metaContent(doc, "article:published"), metaContent(doc, "date"), timeAttr(doc)),
		Category:    strings.ToLower(firstNonEmpty(metaContent(doc, "article:section"), metaContent(doc, "category"))),
	}

	doc.Find("script, style, noscript, nav, footer, header, aside, form").Remove()
	var mainHTML, mainText string
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := normalizeSpace(sel.Text())
		if len(text) >= minSelectorTextSize {
			mainHTML, _ = sel.Html()
			mainText = text
			break
		}
	}
	if mainText == "" {
		title, html, text := readabilityFallback(string(body), pageURL)
		if text != "" {
			mainHTML, mainText = html, normalizeSpace(text)
			if page.Title == "" {
				page.Title = title
			}
		}
	}
	if mainText == "" {
		mainHTML, _ = doc.Find("body").Html()
		mainText = normalizeSpace(doc.Find("body").Text())
	}
	page.Text = mainText

	converter := md.NewConverter(pageHost(pageURL), true, &md.Options{GetAbsoluteURL: absoluteURL(pageURL)})
	markdown, err := converter.ConvertString(mainHTML)
	if err != nil {
		markdown = mainText
	}
	page.Markdown = strings.TrimSpace(markdown)
	if page.Category == "" {
		page.Category = "general"
	}
	return page, nil
}

func readabilityFallback(documentHTML, pageURL string) (title, html, text string) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", "", ""
	}
	article, err := readability.FromReader(strings.NewReader(documentHTML), parsed)
	if err != nil {
		return "", "", ""
	}
	return strings.TrimSpace(article.Title), strings.TrimSpace(article.Content), strings.TrimSpace(article.TextContent)
}

func metaContent(doc *goquery.Document, key string) string {
	for _, selector := range []string{
		fmt.Sprintf("meta[property='%s']", key),
		fmt.Sprintf("meta[name='%s']", key),
	} {
		if value := strings.TrimSpace(doc.Find(selector).First().AttrOr("content", "")); value != "" {
			return value
		}
	}
	return ""
}

func timeAttr(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("time[datetime]").First().AttrOr("datetime", ""))
}

// pageHost returns the bare host the converter expects as its domain.
func pageHost(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// absoluteURL resolves relative links against the page itself so the page
// scheme and path survive.
func absoluteURL(pageURL string) func(*goquery.Selection, string, string) string {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return md.DefaultGetAbsoluteURL
	}
	return func(selec *goquery.Selection, rawURL, domain string) string {
		ref, err := url.Parse(strings.TrimSpace(rawURL))
		if err != nil || ref.Scheme == "data" {
			return rawURL
		}
		return base.ResolveReference(ref).String()
	}
}

func normalizeSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncate(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
