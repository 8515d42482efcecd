package payload

import "time"

// Source is one configured search source of a request.
type Source struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
	Type string `json:"type" validate:"required"`
}

// Request is the validated submission accepted at the ingress boundary.
type Request struct {
	ProjectID        string   `json:"project_id" validate:"required"`
	RequestID        string   `json:"request_id" validate:"required"`
	UserID           string   `json:"user_id,omitempty"`
	Keywords         []string `json:"keywords" validate:"required,min=1,dive,required"`
	Sources          []Source `json:"sources" validate:"required,min=1,dive"`
	ExtractionMode   string   `json:"extraction_mode" validate:"oneof=summary full structured"`
	QualityThreshold float64  `json:"quality_threshold" validate:"gte=0,lte=1"`
	Priority         string   `json:"priority" validate:"oneof=high medium low"`
	Strategy         string   `json:"strategy" validate:"oneof=table stream batch"`
	AnalysisPrompt   string   `json:"analysis_prompt,omitempty"`
}

// Validation records the outcome of intake validation.
type Validation struct {
	Valid       bool      `json:"is_valid"`
	Errors      []string  `json:"errors,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	ValidatedAt time.Time `json:"validated_at"`
}

// Plan summarizes the expected shape of the processing tree.
type Plan struct {
	Stages                   []string       `json:"stages"`
	Strategy                 string         `json:"strategy"`
	ExpectedItems            map[string]int `json:"expected_items"`
	EstimatedDurationMinutes int            `json:"estimated_duration_minutes"`
	CreatedAt                time.Time      `json:"created_at"`
}

// Intake is the root item's document.
type Intake struct {
	Request    Request     `json:"original_request"`
	Validation *Validation `json:"validation_results,omitempty"`
	Plan       *Plan       `json:"processing_plan,omitempty"`
	AcceptedAt *time.Time  `json:"accepted_at,omitempty"`
}

// Candidate is one search result eligible for fetching.
type Candidate struct {
	URL            string  `json:"url"`
	Title          string  `json:"title,omitempty"`
	Snippet        string  `json:"snippet,omitempty"`
	Source         string  `json:"source,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
	Position       int     `json:"position"`
}

// Search is the document of one per-source search item.
type Search struct {
	Keywords         []string `json:"keywords"`
	Source           Source   `json:"source"`
	SourceIndex      int      `json:"source_index"`
	TotalSources     int      `json:"total_sources"`
	ExtractionMode   string   `json:"extraction_mode,omitempty"`
	QualityThreshold float64  `json:"quality_threshold"`
	AnalysisPrompt   string   `json:"analysis_prompt,omitempty"`
	Queries          []string `json:"search_queries"`

	Results        []Candidate `json:"search_results"`
	ResultCount    int         `json:"total_results"`
	SearchedAt     *time.Time  `json:"processed_at,omitempty"`
	ResultsLocator string      `json:"results_locator,omitempty"`
}

// Summary is the fetch stage's digest of one page.
type Summary struct {
	Title       string `json:"title,omitempty"`
	Response    string `json:"response"`
	MainContent string `json:"main_content,omitempty"`
	PublishDate string `json:"publish_date,omitempty"`
	Category    string `json:"category,omitempty"`
	Model       string `json:"model,omitempty"`
}

// Fetch is the document of one per-URL fetch/summarize item.
type Fetch struct {
	Keywords        []string  `json:"keywords"`
	Source          Source    `json:"source"`
	AnalysisPrompt  string    `json:"analysis_prompt,omitempty"`
	UserPrompt      string    `json:"user_prompt"`
	URL             Candidate `json:"url_data"`
	URLIndex        int       `json:"url_index"`
	TotalURLs       int       `json:"total_urls"`
	TotalFoundURLs  int       `json:"total_found_urls"`
	URLLimitApplied bool      `json:"url_limit_applied"`

	Summary        *Summary   `json:"summary,omitempty"`
	SummarizedAt   *time.Time `json:"summarized_at,omitempty"`
	Error          string     `json:"error,omitempty"`
	ContentLocator string     `json:"content_locator,omitempty"`
}

// AnalysisResult is the structured response of one analysis kind.
type AnalysisResult struct {
	Content    string            `json:"content"`
	Category   string            `json:"category,omitempty"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	AnalyzedAt time.Time         `json:"analyzed_at"`
}

// Analysis is the document of a relevance, insight or implication item. It
// carries an identical copy of the fetch document it was derived from.
type Analysis struct {
	Fetch
	AnalysisType  string          `json:"analysis_type"`
	Result        *AnalysisResult `json:"analysis_result,omitempty"`
	ResultLocator string          `json:"result_locator,omitempty"`
}
