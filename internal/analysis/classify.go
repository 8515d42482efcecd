package analysis

import (
	"regexp"
	"strconv"
	"strings"

	"marketintel/internal/queue"
)

type categoryRule struct {
	category string
	terms    []string
}

// Rules are checked in order; the first rule with a matching term wins.
var categoryRules = map[queue.Stage][]categoryRule{
	queue.StageRelevance: {
		{"high_relevance", []string{"high relevance", "highly relevant", "very relevant"}},
		{"low_relevance", []string{"low relevance", "not relevant", "limited relevance"}},
		{"pharmaceutical", []string{"pharmaceutical", "drug", "medicine", "clinical", "fda"}},
		{"market_intelligence", []string{"market", "competitive", "revenue", "sales", "growth"}},
		{"regulatory", []string{"regulatory", "compliance", "approval", "guideline"}},
	},
	queue.StageInsight: {
		{"market_analysis", []string{"market share", "market size", "competition", "competitive", "market"}},
		{"regulatory", []string{"regulatory", "regulation", "fda", "approval", "compliance"}},
		{"financial", []string{"revenue", "financial", "investment", "budget", "roi", "cost"}},
		{"technology", []string{"technology", "innovation", "pipeline", "research", "development"}},
		{"strategic", []string{"strategic", "strategy", "opportunity", "expansion", "growth"}},
	},
	queue.StageImplication: {
		{"risk", []string{"risk", "threat", "pressure", "decline", "exposure"}},
		{"opportunity", []string{"opportunity", "partnership", "expansion", "growth", "launch"}},
		{"regulatory", []string{"regulatory", "compliance", "approval", "fda"}},
		{"operational", []string{"supply", "operations", "manufacturing", "capacity", "cost"}},
		{"strategic", []string{"strategy", "strategic", "positioning", "portfolio"}},
	},
}

// DefaultCategory is used when no rule matches.
const DefaultCategory = "general"

// Category picks a category for an analysis response by keyword rules.
func Category(kind queue.Stage, content string) string {
	lower := strings.ToLower(content)
	if strings.TrimSpace(lower) == "" {
		return DefaultCategory
	}
	for _, rule := range categoryRules[kind] {
		for _, term := range rule.terms {
			if strings.Contains(lower, term) {
				return rule.category
			}
		}
	}
	return DefaultCategory
}

// ConfidenceInput lists the signals confidence is derived from.
type ConfidenceInput struct {
	Content  string
	Success  bool
	Model    string
	HasTitle bool
	HasURL   bool
}

// Confidence scores an analysis between 0 and 1. Substantive, successful
// responses from a named model about a titled page score highest.
func Confidence(in ConfidenceInput) float64 {
	score := 0.0
	content := strings.TrimSpace(in.Content)
	if content != "" {
		score += 0.3
		score += 0.2 * min(float64(len(content))/2000, 1)
	}
	if in.Success {
		score += 0.3
	}
	if in.Model != "" {
		score += 0.1
	}
	if in.HasTitle {
		score += 0.05
	}
	if in.HasURL {
		score += 0.05
	}
	return min(score, 1.0)
}

var relevanceScorePattern = regexp.MustCompile(`(?i)relevance\s+score[^0-9]{0,20}(\d{1,3})`)

// RelevanceScore extracts the 0-100 score a relevance response reports.
func RelevanceScore(content string) (int, bool) {
	match := relevanceScorePattern.FindStringSubmatch(content)
	if len(match) < 2 {
		return 0, false
	}
	score, err := strconv.Atoi(match[1])
	if err != nil || score > 100 {
		return 0, false
	}
	return score, true
}
