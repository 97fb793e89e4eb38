// Command explaind serves the Compiler Explorer "explain" API: it accepts
// compilation results and asks Claude to explain the generated assembly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/compiler-explorer/explain/pkg/cache"
	"github.com/compiler-explorer/explain/pkg/config"
	"github.com/compiler-explorer/explain/pkg/llms"
	"github.com/compiler-explorer/explain/pkg/logging"
	"github.com/compiler-explorer/explain/pkg/prompt"
	"github.com/compiler-explorer/explain/pkg/server"
	"github.com/compiler-explorer/explain/pkg/service"
)

var (
	configPath string
	listenFlag string
	promptFlag string
)

var rootCmd = &cobra.Command{
	Use:   "explaind",
	Short: "Compiler Explorer assembly explanation service",
	Long: `explaind serves the Claude-backed explanation API used by Compiler
Explorer. POST a compilation result to / and receive a natural-language
explanation of the generated assembly; GET / lists the available audience
levels and explanation types.

Configuration comes from an optional YAML file plus EXPLAIN_* environment
variables. The Anthropic API key is read from ANTHROPIC_API_KEY.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.Flags().StringVarP(&listenFlag, "listen", "l", "", "listen address (overrides config)")
	rootCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "prompt YAML file (overrides embedded prompt)")
}

func run(ctx context.Context) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenFlag != "" {
		settings.ListenAddress = listenFlag
	}
	if promptFlag != "" {
		settings.PromptPath = promptFlag
	}

	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(settings.LogLevel),
		Outputs:  []logging.Output{logging.NewJSONOutput(os.Stdout)},
	}))
	logger := logging.GetLogger()

	p := prompt.Default()
	if settings.PromptPath != "" {
		if p, err = prompt.LoadFile(settings.PromptPath); err != nil {
			return err
		}
	}
	logger.Info(ctx, "loaded prompt version %s for model %s", p.Version(), p.Model())

	client, err := llms.NewAnthropicClient(settings.AnthropicAPIKey)
	if err != nil {
		return err
	}

	store, err := cache.New(settings.Cache)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := service.New(p, client, store)

	srv, err := server.NewServer(svc, server.Config{
		ListenAddress:  settings.ListenAddress,
		RootPath:       settings.RootPath,
		MetricsEnabled: settings.MetricsEnabled,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
