package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/review"
	"github.com/jackzampolin/critic/internal/reviewer"
)

var (
	reviewProvider string
	reviewMode     string
	reviewLanguage string
	reviewFormat   string
	reviewOut      string
)

var reviewCmd = &cobra.Command{
	Use:   "review <file>",
	Short: "Review a source file",
	Long: `Review a source file with an LLM provider.

The reply is held to the code review contract: three issue lists with
bounded criticality levels, documentation issues, a 0-100 score, and
refactored code. Replies that do not conform are rejected with a
reason and the raw response.

Examples:
  critic review main.go                          # Review with the default provider
  critic review main.go --provider gemini        # Pick a provider
  critic review main.go --format sarif -O out.sarif
  critic review main.go --mode freetext          # Force local extraction`,
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

		outcome, err := rev.Review(cmd.Context(), reviewer.ReviewRequest{
			Code:     code,
			Language: reviewLanguage,
			Provider: reviewProvider,
			Mode:     reviewMode,
			Target:   args[0],
		})
		if err != nil {
			return err
		}

		if reviewFormat == "sarif" {
			return writeReviewSARIF(outcome, args[0], reviewOut)
		}

		if err := printEnvelope(outcome.Envelope, reviewFormat, reviewOut); err != nil {
			return err
		}
		return extractionError(outcome)
	},
}

// writeReviewSARIF renders a successful review as SARIF. Failed
// extractions fall back to the JSON failure envelope so the reason and
// raw response are not lost.
func writeReviewSARIF(outcome *reviewer.Outcome, target, outPath string) error {
	if !outcome.OK() {
		if err := printEnvelope(outcome.Envelope, "json", outPath); err != nil {
			return err
		}
		return extractionError(outcome)
	}

	res, err := review.DecodeReview(outcome.Extraction.Doc)
	if err != nil {
		return err
	}
	report, err := review.ToSARIF(res, target)
	if err != nil {
		return err
	}

	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		return report.Write(f)
	}
	return report.Write(os.Stdout)
}

func init() {
	reviewCmd.Flags().StringVar(&reviewProvider, "provider", "", "Provider to use (default from config)")
	reviewCmd.Flags().StringVar(&reviewMode, "mode", "", "Extraction mode: structured or freetext (default from config)")
	reviewCmd.Flags().StringVar(&reviewLanguage, "language", "", "Language hint for the prompt")
	reviewCmd.Flags().StringVar(&reviewFormat, "format", "", "Output format: json, yaml, or sarif")
	reviewCmd.Flags().StringVarP(&reviewOut, "out", "O", "", "Write output to a file instead of stdout")
	rootCmd.AddCommand(reviewCmd)
}
