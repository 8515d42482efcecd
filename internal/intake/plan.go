package intake

import (
	"time"

	"marketintel/internal/payload"
	"marketintel/internal/queue"
)

var strategyMultipliers = map[string]float64{
	string(queue.StrategyStream): 0.8,
	string(queue.StrategyTable):  1.0,
	string(queue.StrategyBatch):  1.5,
}

// BuildPlan estimates the processing tree a request will produce when each
// search fans out to at most urlCap fetch items.
func BuildPlan(req payload.Request, urlCap int, now time.Time) payload.Plan {
	sources := len(req.Sources)
	perStage := sources * max(urlCap, 0)

	stages := make([]string, 0, len(queue.AllStages())-1)
	expected := make(map[string]int, len(queue.AllStages())-1)
	for _, stage := range queue.AllStages() {
		switch stage {
		case queue.StageIntake:
			continue
		case queue.StageSearch:
			expected[string(stage)] = sources
		default:
			expected[string(stage)] = perStage
		}
		stages = append(stages, string(stage))
	}

	return payload.Plan{
		Stages:                   stages,
		Strategy:                 req.Strategy,
		ExpectedItems:            expected,
		EstimatedDurationMinutes: EstimateMinutes(len(req.Keywords), sources, req.Strategy),
		CreatedAt:                now.UTC(),
	}
}

// EstimateMinutes is a reporting heuristic; nothing schedules against it.
func EstimateMinutes(keywords, sources int, strategy string) int {
	multiplier, ok := strategyMultipliers[strategy]
	if !ok {
		multiplier = 1.0
	}
	base := 5 + min(keywords*2, 20) + min(sources*3, 30)
	return int(float64(base) * multiplier)
}
