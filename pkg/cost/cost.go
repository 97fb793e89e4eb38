// Package cost maintains the per-token pricing table for Claude models.
//
// Anthropic does not expose pricing programmatically, so the table is kept by
// hand from the published price list and looked up by model family.
package cost

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/compiler-explorer/explain/pkg/errors"
)

// ModelCost is the USD price per million tokens for one model family.
type ModelCost struct {
	PerInputMTok  float64
	PerOutputMTok float64
}

// Model family costs in USD per million tokens.
// Updated 2025-09-16 from https://claude.com/pricing
var modelFamilies = map[string]ModelCost{
	"opus-4.1":   {15.0, 75.0},
	"opus-4":     {15.0, 75.0},
	"sonnet-4":   {3.0, 15.0},
	"sonnet-3.7": {3.0, 15.0},
	"sonnet-3.5": {3.0, 15.0},
	"haiku-3.5":  {0.80, 4.0},
	"opus-3":     {15.0, 75.0},
	"haiku-3":    {0.25, 1.25},
}

var (
	// claude-3-5-haiku-20241022 -> haiku-3.5
	versionFirstDated = regexp.MustCompile(`^claude-(\d+)-(\d+)-(\w+)-\d+$`)
	// claude-3-opus-20240229 -> opus-3
	majorOnlyDated = regexp.MustCompile(`^claude-(\d+)-(\w+)-\d+$`)
	// claude-opus-4-1-20250805 -> opus-4.1
	familyFirstDated = regexp.MustCompile(`^claude-(\w+)-(\d+)-(\d+)-\d+$`)
	// claude-sonnet-4-0 -> sonnet-4
	familyFirst = regexp.MustCompile(`^claude-(\w+)-(\d+)-(\d+)$`)
	// claude-opus-4 -> opus-4
	familyMajor = regexp.MustCompile(`^claude-(\w+)-(\d+)$`)
	// Loose fallback: a family name followed by a version somewhere.
	looseVersion = map[string]*regexp.Regexp{
		"opus":   regexp.MustCompile(`opus[-\s]+(\d+)(?:[-.](\d+))?`),
		"sonnet": regexp.MustCompile(`sonnet[-\s]+(\d+)(?:[-.](\d+))?`),
		"haiku":  regexp.MustCompile(`haiku[-\s]+(\d+)(?:[-.](\d+))?`),
	}
)

func familyVersion(family, major, minor string) string {
	if minor == "" || minor == "0" {
		return fmt.Sprintf("%s-%s", family, major)
	}
	return fmt.Sprintf("%s-%s.%s", family, major, minor)
}

// NormalizeModelName reduces a full model name to its pricing family,
// e.g. "claude-3-5-haiku-20241022" -> "haiku-3.5".
func NormalizeModelName(model string) (string, error) {
	model = strings.ToLower(model)

	if m := versionFirstDated.FindStringSubmatch(model); m != nil {
		return familyVersion(m[3], m[1], m[2]), nil
	}
	if m := familyFirstDated.FindStringSubmatch(model); m != nil {
		return familyVersion(m[1], m[2], m[3]), nil
	}
	if m := majorOnlyDated.FindStringSubmatch(model); m != nil {
		return familyVersion(m[2], m[1], ""), nil
	}
	if m := familyFirst.FindStringSubmatch(model); m != nil {
		return familyVersion(m[1], m[2], m[3]), nil
	}
	if m := familyMajor.FindStringSubmatch(model); m != nil {
		return familyVersion(m[1], m[2], ""), nil
	}

	for family, re := range looseVersion {
		if !strings.Contains(model, family) {
			continue
		}
		if m := re.FindStringSubmatch(model); m != nil {
			return familyVersion(family, m[1], m[2]), nil
		}
	}

	return "", errors.WithFields(
		errors.New(errors.CostLookupFailed, "unable to parse model name"),
		errors.Fields{"model": model})
}

// PerToken returns the USD cost per input and output token for a model.
func PerToken(model string) (inputCost, outputCost float64, err error) {
	family, err := NormalizeModelName(model)
	if err != nil {
		return 0, 0, err
	}

	cost, ok := modelFamilies[family]
	if !ok {
		families := make([]string, 0, len(modelFamilies))
		for name := range modelFamilies {
			families = append(families, name)
		}
		sort.Strings(families)
		return 0, 0, errors.WithFields(
			errors.New(errors.CostLookupFailed, "model family not found in pricing data"),
			errors.Fields{"family": family, "available": strings.Join(families, ", ")})
	}

	return cost.PerInputMTok / 1_000_000, cost.PerOutputMTok / 1_000_000, nil
}

// Breakdown is the computed cost of one request.
type Breakdown struct {
	InputCost  float64
	OutputCost float64
	TotalCost  float64
}

// Compute prices the given token counts against the model's family rates.
func Compute(model string, inputTokens, outputTokens int) (Breakdown, error) {
	perInput, perOutput, err := PerToken(model)
	if err != nil {
		return Breakdown{}, err
	}

	inputCost := float64(inputTokens) * perInput
	outputCost := float64(outputTokens) * perOutput
	return Breakdown{
		InputCost:  inputCost,
		OutputCost: outputCost,
		TotalCost:  inputCost + outputCost,
	}, nil
}
