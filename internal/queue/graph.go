package queue

import "strings"

// Stage names one phase of the pipeline with its own queue and worker.
type Stage string

const (
	StageIntake      Stage = "intake"
	StageSearch      Stage = "search"
	StageFetch       Stage = "fetch"
	StageRelevance   Stage = "relevance"
	StageInsight     Stage = "insight"
	StageImplication Stage = "implication"
)

var allStages = []Stage{
	StageIntake,
	StageSearch,
	StageFetch,
	StageRelevance,
	StageInsight,
	StageImplication,
}

// AllStages returns the pipeline stages in topological order.
func AllStages() []Stage {
	out := make([]Stage, len(allStages))
	copy(out, allStages)
	return out
}

// AnalysisStages returns the three terminal analysis stages fed by fetch.
func AnalysisStages() []Stage {
	return []Stage{StageRelevance, StageInsight, StageImplication}
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, stage := range allStages {
		if stage == normalized {
			return stage, true
		}
	}
	return "", false
}

// StageGraph maps each stage to the stages it fans out to on completion.
type StageGraph map[Stage][]Stage

var defaultGraph = StageGraph{
	StageIntake:      {StageSearch},
	StageSearch:      {StageFetch},
	StageFetch:       {StageRelevance, StageInsight, StageImplication},
	StageRelevance:   nil,
	StageInsight:     nil,
	StageImplication: nil,
}

// DefaultGraph returns a copy of the static pipeline graph.
func DefaultGraph() StageGraph {
	out := make(StageGraph, len(defaultGraph))
	for stage, next := range defaultGraph {
		out[stage] = append([]Stage(nil), next...)
	}
	return out
}

// Downstream returns the successor stages of s. Terminal stages return nil.
func (g StageGraph) Downstream(s Stage) []Stage {
	return g[s]
}

// IsTerminal reports whether s has no successors.
func (g StageGraph) IsTerminal(s Stage) bool {
	return len(g[s]) == 0
}
