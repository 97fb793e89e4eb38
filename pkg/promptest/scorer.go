package promptest

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Score is the heuristic quality assessment of one explanation. It catches
// obvious problems quickly; thorough review needs a human or a reviewer
// model.
type Score struct {
	Overall float64            `json:"overall_score"`
	Metrics map[string]float64 `json:"metric_scores"`
	Flags   []string           `json:"flags"`
}

// Metric weights. Accuracy dominates: a wrong explanation is worse than a
// wordy one.
var metricWeights = map[string]float64{
	"accuracy":        0.30,
	"relevance":       0.25,
	"conciseness":     0.20,
	"insight":         0.15,
	"appropriateness": 0.10,
}

// Hedge phrases that usually precede made-up claims.
var misleadingPatterns = []string{
	"likely leverages",
	"compile-time optimization converts",
	"might inline this function",
}

// Section headers that pad explanations without adding content.
var boilerplatePatterns = []string{
	"architecture:",
	"optimization level:",
	"calling convention:",
	"microarchitectural observations:",
	"performance implications:",
}

var efficiencyWords = []string{"efficient", "optimized", "optimal"}

// ScoreExplanation runs the heuristic metrics over an explanation.
func ScoreExplanation(explanation string, testCase *Case) Score {
	fold := cases.Fold()
	folded := fold.String(explanation)

	metrics := make(map[string]float64, len(metricWeights))
	var flags []string

	accuracy := 1.0
	for _, pattern := range misleadingPatterns {
		if strings.Contains(folded, fold.String(pattern)) {
			accuracy -= 0.3
			flags = append(flags, fmt.Sprintf("Potentially misleading: %q", pattern))
		}
	}
	metrics["accuracy"] = clamp(accuracy)

	relevance := 1.0
	claimsEfficiency := false
	for _, word := range efficiencyWords {
		if strings.Contains(folded, word) {
			claimsEfficiency = true
			break
		}
	}
	if claimsEfficiency && !strings.Contains(fold.String(testCase.Description), "unoptimized") {
		relevance -= 0.2
		flags = append(flags, "Claims efficiency - check if code is actually optimized")
	}
	metrics["relevance"] = clamp(relevance)

	conciseness := 1.0
	boilerplate := 0
	for _, pattern := range boilerplatePatterns {
		if strings.Contains(folded, pattern) {
			boilerplate++
		}
	}
	if boilerplate > 0 {
		conciseness -= float64(boilerplate) * 0.2
		flags = append(flags, fmt.Sprintf("Found %d boilerplate headers", boilerplate))
	}
	metrics["conciseness"] = clamp(conciseness)

	// Not measurable heuristically; neutral defaults keep the weighting
	// comparable across runs.
	metrics["insight"] = 0.6
	metrics["appropriateness"] = 0.6

	overall := 0.0
	for name, value := range metrics {
		overall += value * metricWeights[name]
	}

	return Score{
		Overall: overall,
		Metrics: metrics,
		Flags:   flags,
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
