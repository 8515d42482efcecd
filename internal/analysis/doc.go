// Package analysis implements the three terminal analysis stages
// (relevance, insight and implication). Each stage prompts the configured
// analyzer with the fetch summary and records a categorized result.
package analysis
