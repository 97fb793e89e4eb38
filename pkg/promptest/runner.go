package promptest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	errs "github.com/compiler-explorer/explain/pkg/errors"
	"github.com/compiler-explorer/explain/pkg/llms"
	"github.com/compiler-explorer/explain/pkg/logging"
	"github.com/compiler-explorer/explain/pkg/prompt"
)

// Result is the outcome of one test case.
type Result struct {
	CaseID         string `json:"case_id"`
	PromptVersion  string `json:"prompt_version"`
	Model          string `json:"model"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	Explanation    string `json:"response,omitempty"`
	InputTokens    int    `json:"input_tokens,omitempty"`
	OutputTokens   int    `json:"output_tokens,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms,omitempty"`
	Score          *Score `json:"score,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Summary aggregates a full run.
type Summary struct {
	PromptVersion   string   `json:"prompt_version"`
	TotalCases      int      `json:"total_cases"`
	SuccessfulCases int      `json:"successful_cases"`
	AverageScore    float64  `json:"average_score"`
	Results         []Result `json:"results"`
}

// Runner executes test cases against a prompt configuration.
type Runner struct {
	prompt      *prompt.Prompt
	client      llms.Client
	concurrency int
}

// NewRunner creates a runner. Concurrency below 1 defaults to 5, matching
// Anthropic's default rate-limit tier.
func NewRunner(p *prompt.Prompt, client llms.Client, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 5
	}
	return &Runner{prompt: p, client: client, concurrency: concurrency}
}

// Run executes all cases, bounded by the configured concurrency, and
// returns a summary with per-case results ordered by case ID.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Summary, error) {
	if len(cases) == 0 {
		return nil, errs.New(errs.InvalidInput, "no test cases matched")
	}

	logger := logging.GetLogger()
	logger.Info(ctx, "running %d test cases with prompt version %s (max %d concurrent)",
		len(cases), r.prompt.Version(), r.concurrency)

	p := pool.NewWithResults[Result]().WithContext(ctx).WithMaxGoroutines(r.concurrency)
	for _, testCase := range cases {
		testCase := testCase
		p.Go(func(ctx context.Context) (Result, error) {
			return r.runCase(ctx, &testCase), nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].CaseID < results[j].CaseID })

	summary := &Summary{
		PromptVersion: r.prompt.Version(),
		TotalCases:    len(results),
		Results:       results,
	}
	var totalScore float64
	for _, result := range results {
		if result.Success {
			summary.SuccessfulCases++
			if result.Score != nil {
				totalScore += result.Score.Overall
			}
		}
	}
	if summary.SuccessfulCases > 0 {
		summary.AverageScore = totalScore / float64(summary.SuccessfulCases)
	}
	return summary, nil
}

func (r *Runner) runCase(ctx context.Context, testCase *Case) Result {
	result := Result{
		CaseID:        testCase.ID,
		PromptVersion: r.prompt.Version(),
		Model:         r.prompt.Model(),
		Timestamp:     time.Now().Format(time.RFC3339),
	}

	spec, err := r.prompt.GenerateMessages(testCase.Request())
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	response, err := r.client.Generate(ctx, spec)
	result.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Explanation = strings.TrimSpace(response.Content)
	result.InputTokens = response.InputTokens
	result.OutputTokens = response.OutputTokens

	score := ScoreExplanation(result.Explanation, testCase)
	result.Score = &score
	return result
}

// Rescore recomputes the heuristic scores of a saved summary against the
// given cases and refreshes the aggregates. Useful after tuning the scorer:
// no API calls are made. Results whose case ID is missing from the corpus
// keep their stored score.
func Rescore(summary *Summary, cases []Case) {
	byID := make(map[string]*Case, len(cases))
	for i := range cases {
		byID[cases[i].ID] = &cases[i]
	}

	var totalScore float64
	summary.SuccessfulCases = 0
	for i := range summary.Results {
		result := &summary.Results[i]
		if !result.Success {
			continue
		}
		summary.SuccessfulCases++
		if testCase, ok := byID[result.CaseID]; ok {
			score := ScoreExplanation(result.Explanation, testCase)
			result.Score = &score
		}
		if result.Score != nil {
			totalScore += result.Score.Overall
		}
	}
	summary.AverageScore = 0
	if summary.SuccessfulCases > 0 {
		summary.AverageScore = totalScore / float64(summary.SuccessfulCases)
	}
}

// LoadResults reads a summary previously written by SaveResults.
func LoadResults(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.InvalidInput, "failed to read results file")
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, errs.Wrap(err, errs.InvalidInput, "failed to decode results file")
	}
	return &summary, nil
}

// SaveResults writes the summary as indented JSON, creating parent
// directories as needed.
func SaveResults(path string, summary *Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(err, errs.Unknown, "failed to create results directory")
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errs.Wrap(err, errs.Unknown, "failed to encode results")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.Wrap(err, errs.Unknown, "failed to write results file")
	}
	return nil
}
