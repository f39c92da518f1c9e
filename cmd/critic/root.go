package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/config"
	"github.com/jackzampolin/critic/internal/home"
	"github.com/jackzampolin/critic/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "critic",
	Short: "Schema-constrained code review with LLM providers",
	Long: `Critic reviews code with LLM providers and holds every reply to a
JSON contract: responses are extracted from free-form model output,
validated field by field, and rejected with a reason when they
do not conform.

Flows:
  - review   Full code review (issues, score, refactored code)
  - explain  Plain explanation of what the code does
  - analyze  Model picks review, explanation, or both per your instruction

Run flows directly (critic review main.go) or against a running
server (critic serve, then critic api review main.go).`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.critic/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "critic home directory (default: ~/.critic)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	// Set output format and logging before any command runs. One-shot
	// flows stay quiet unless asked; serve builds its own logger.
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	}

	rootCmd.AddCommand(versionCmd)
}

// criticHome resolves the home directory from the --home flag.
func criticHome() (*home.Dir, error) {
	return home.New(homeDir)
}

// newConfigManager loads configuration, preferring --config, then the
// home directory config when present, then viper's default search path.
func newConfigManager(h *home.Dir) (*config.Manager, error) {
	path := cfgFile
	if path == "" && h != nil && h.ConfigExists() {
		path = h.ConfigPath()
	}
	return config.NewManager(path)
}
