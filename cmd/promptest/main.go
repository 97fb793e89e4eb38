// Command promptest evaluates prompt configurations against a corpus of
// test cases, calling the real Claude API and scoring the explanations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/compiler-explorer/explain/pkg/llms"
	"github.com/compiler-explorer/explain/pkg/logging"
	"github.com/compiler-explorer/explain/pkg/prompt"
	"github.com/compiler-explorer/explain/pkg/promptest"
)

var (
	promptPath      string
	casesDir        string
	outputPath      string
	concurrency     int
	caseIDs         []string
	category        string
	audience        string
	explanationType string
)

var rootCmd = &cobra.Command{
	Use:          "promptest",
	Short:        "Evaluate explain prompts against test cases",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run test cases against the Claude API and score the explanations",
	Long: `run executes a prompt configuration over a directory of YAML test
cases using the production message pipeline, then scores each explanation
with heuristic quality metrics.

Requires ANTHROPIC_API_KEY; every case costs real tokens.`,
	Example: `  # Run the embedded production prompt over all cases
  promptest run --cases prompt_testing/test_cases

  # Try a candidate prompt on a subset
  promptest run --prompt candidate.yaml --cases test_cases --category basic`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCases(cmd)
	},
}

var listCasesCmd = &cobra.Command{
	Use:   "list-cases",
	Short: "List the test case corpus without calling the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCases()
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <results.json>",
	Short: "Re-score a saved results file without calling the API",
	Long: `score reloads a results file written by run --output and recomputes
the heuristic scores against the current case corpus. Use it after tuning
the scorer; no tokens are spent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scoreResults(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&casesDir, "cases", "test_cases", "directory of YAML test case files")

	runCmd.Flags().StringVarP(&promptPath, "prompt", "p", "", "prompt YAML file (default: embedded production prompt)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write JSON results to this file")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 5, "maximum concurrent API calls")
	addFilterFlags(runCmd)

	addFilterFlags(listCasesCmd)

	scoreCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the re-scored JSON results to this file")

	rootCmd.AddCommand(runCmd, listCasesCmd, scoreCmd)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&caseIDs, "case", nil, "select only these case IDs")
	cmd.Flags().StringVar(&category, "category", "", "select only cases in this category")
	cmd.Flags().StringVar(&audience, "audience", "", "select only cases with this audience")
	cmd.Flags().StringVar(&explanationType, "explanation-type", "", "select only cases with this explanation type")
}

func loadFilteredCases() ([]promptest.Case, error) {
	cases, err := promptest.LoadCaseDir(casesDir)
	if err != nil {
		return nil, err
	}
	return promptest.Filter{
		IDs:             caseIDs,
		Category:        category,
		Audience:        audience,
		ExplanationType: explanationType,
	}.Apply(cases), nil
}

func printSummary(summary *promptest.Summary) {
	for _, result := range summary.Results {
		if result.Success {
			fmt.Printf("  ok   %s: %.2f\n", result.CaseID, result.Score.Overall)
		} else {
			fmt.Printf("  FAIL %s: %s\n", result.CaseID, result.Error)
		}
	}
	fmt.Printf("\n%d/%d cases succeeded, average score %.2f (prompt %s)\n",
		summary.SuccessfulCases, summary.TotalCases, summary.AverageScore, summary.PromptVersion)
}

func runCases(cmd *cobra.Command) error {
	ctx := cmd.Context()

	p := prompt.Default()
	if promptPath != "" {
		var err error
		if p, err = prompt.LoadFile(promptPath); err != nil {
			return err
		}
	}

	client, err := llms.NewAnthropicClient("")
	if err != nil {
		return err
	}

	cases, err := loadFilteredCases()
	if err != nil {
		return err
	}

	runner := promptest.NewRunner(p, client, concurrency)
	summary, err := runner.Run(ctx, cases)
	if err != nil {
		return err
	}

	printSummary(summary)

	if outputPath != "" {
		if err := promptest.SaveResults(outputPath, summary); err != nil {
			return err
		}
		logging.GetLogger().Info(ctx, "results written to %s", outputPath)
	}
	return nil
}

func listCases() error {
	cases, err := loadFilteredCases()
	if err != nil {
		return err
	}

	fmt.Printf("%-28s %-14s %-14s %s\n", "ID", "CATEGORY", "AUDIENCE", "TYPE")
	for _, testCase := range cases {
		req := testCase.Request()
		fmt.Printf("%-28s %-14s %-14s %s\n",
			testCase.ID, testCase.Category,
			req.Audience.OrDefault(), req.Explanation.OrDefault())
	}
	fmt.Printf("\n%d cases\n", len(cases))
	return nil
}

func scoreResults(resultsPath string) error {
	summary, err := promptest.LoadResults(resultsPath)
	if err != nil {
		return err
	}

	cases, err := promptest.LoadCaseDir(casesDir)
	if err != nil {
		return err
	}

	promptest.Rescore(summary, cases)
	printSummary(summary)

	if outputPath != "" {
		return promptest.SaveResults(outputPath, summary)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
