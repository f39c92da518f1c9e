package endpoints

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/reviewer"
	"github.com/jackzampolin/critic/internal/svcctx"
)

// AnalyzeBody is the request body for the analyze endpoint.
type AnalyzeBody struct {
	Code        string `json:"code"`
	Instruction string `json:"instruction,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Target      string `json:"target,omitempty"`
}

// AnalyzeEndpoint handles POST /analyze. Both functions are declared to
// the model; the response envelope is annotated with the one it called.
type AnalyzeEndpoint struct{}

func (e *AnalyzeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/analyze", e.handler
}

func (e *AnalyzeEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Analyze source code
//	@Description	Let the model choose between review and explanation per the instruction; the envelope carries function_called
//	@Tags			review
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnalyzeBody	true	"Code and instruction"
//	@Success		200		{object}	map[string]any	"{\"response\": ..., \"function_called\": string}"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	map[string]any	"{\"error\": string, \"raw_response\": string}"
//	@Failure		502		{object}	ErrorResponse
//	@Router			/analyze [post]
func (e *AnalyzeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var body AnalyzeBody
	if !decodeBody(w, r, &body) {
		return
	}
	if !checkFlowInputs(w, r, body.Code, body.Provider, "") {
		return
	}

	rev := svcctx.ReviewerFrom(r.Context())
	if rev == nil {
		writeError(w, http.StatusInternalServerError, "reviewer not available")
		return
	}

	outcome, err := rev.Analyze(r.Context(), reviewer.AnalyzeRequest{
		Code:        body.Code,
		Instruction: body.Instruction,
		Provider:    body.Provider,
		Target:      body.Target,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeEnvelope(w, envelopeStatus(outcome), outcome.Envelope)
}

func (e *AnalyzeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider, instruction, target string
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a source file; the model picks review or explanation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if target == "" {
				target = args[0]
			}
			body := AnalyzeBody{
				Code:        string(code),
				Instruction: instruction,
				Provider:    provider,
				Target:      target,
			}
			client := api.NewClient(getServerURL())
			raw, status, err := client.PostRaw(cmd.Context(), "/analyze", body)
			if err != nil {
				return err
			}
			if err := outputRawEnvelope(raw); err != nil {
				return err
			}
			if status >= 400 {
				return fmt.Errorf("analyze failed (HTTP %d)", status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider to use (default from server config)")
	cmd.Flags().StringVar(&instruction, "instruction", "", "What to do with the code (default: review it)")
	cmd.Flags().StringVar(&target, "target", "", "Artifact name for call records (default: file path)")
	return cmd
}
