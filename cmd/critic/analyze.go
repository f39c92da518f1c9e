package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/reviewer"
)

var (
	analyzeProvider    string
	analyzeInstruction string
	analyzeFormat      string
	analyzeOut         string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a source file per your instruction",
	Long: `Analyze a source file with an LLM provider.

Both the review and explanation functions are offered to the model,
and your instruction decides which it calls: ask for problems and it
reviews, ask what the code does and it explains, ask for both and the
response combines the two. The envelope names the function called.

Examples:
  critic analyze main.go --instruction "find security problems"
  critic analyze main.go --instruction "explain and review this"`,
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

		outcome, err := rev.Analyze(cmd.Context(), reviewer.AnalyzeRequest{
			Code:        code,
			Instruction: analyzeInstruction,
			Provider:    analyzeProvider,
			Target:      args[0],
		})
		if err != nil {
			return err
		}

		if err := printEnvelope(outcome.Envelope, analyzeFormat, analyzeOut); err != nil {
			return err
		}
		return extractionError(outcome)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "", "Provider to use (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeInstruction, "instruction", "", "What to do with the code (default: review it)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "", "Output format: json or yaml")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "O", "", "Write output to a file instead of stdout")
	rootCmd.AddCommand(analyzeCmd)
}
