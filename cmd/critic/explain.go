package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/reviewer"
)

var (
	explainProvider string
	explainLanguage string
	explainFormat   string
	explainOut      string
)

var explainCmd = &cobra.Command{
	Use:   "explain <file>",
	Short: "Explain what a source file does",
	Long: `Explain a source file with an LLM provider.

The explanation covers purpose, components, algorithm, complexity
estimates, and edge cases. All fields are optional on the model's
side; whatever comes back is validated against the explanation
contract.

Examples:
  critic explain main.go
  critic explain main.go --provider gemini --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readCodeFile(args[0])
		if err != nil {
			return err
		}
		rev, err := localReviewer()
		if err != nil {
			return err
		}

		outcome, err := rev.Explain(cmd.Context(), reviewer.ExplainRequest{
			Code:     code,
			Language: explainLanguage,
			Provider: explainProvider,
			Target:   args[0],
		})
		if err != nil {
			return err
		}

		if err := printEnvelope(outcome.Envelope, explainFormat, explainOut); err != nil {
			return err
		}
		return extractionError(outcome)
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainProvider, "provider", "", "Provider to use (default from config)")
	explainCmd.Flags().StringVar(&explainLanguage, "language", "", "Language hint for the prompt")
	explainCmd.Flags().StringVar(&explainFormat, "format", "", "Output format: json or yaml")
	explainCmd.Flags().StringVarP(&explainOut, "out", "O", "", "Write output to a file instead of stdout")
	rootCmd.AddCommand(explainCmd)
}
