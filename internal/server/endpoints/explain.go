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

// ExplainBody is the request body for the explain endpoint.
type ExplainBody struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
	Provider string `json:"provider,omitempty"`
	Target   string `json:"target,omitempty"`
}

// ExplainEndpoint handles POST /explain.
type ExplainEndpoint struct{}

func (e *ExplainEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/explain", e.handler
}

func (e *ExplainEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Explain source code
//	@Description	Ask the model to explain the code and return the validated explanation envelope
//	@Tags			review
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExplainBody	true	"Code to explain"
//	@Success		200		{object}	map[string]any	"{\"response\": CodeExplanation}"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	map[string]any	"{\"error\": string, \"raw_response\": string}"
//	@Failure		502		{object}	ErrorResponse
//	@Router			/explain [post]
func (e *ExplainEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var body ExplainBody
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

	outcome, err := rev.Explain(r.Context(), reviewer.ExplainRequest{
		Code:     body.Code,
		Language: body.Language,
		Provider: body.Provider,
		Target:   body.Target,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeEnvelope(w, envelopeStatus(outcome), outcome.Envelope)
}

func (e *ExplainEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider, language, target string
	cmd := &cobra.Command{
		Use:   "explain <file>",
		Short: "Explain a source file via the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if target == "" {
				target = args[0]
			}
			body := ExplainBody{
				Code:     string(code),
				Language: language,
				Provider: provider,
				Target:   target,
			}
			client := api.NewClient(getServerURL())
			raw, status, err := client.PostRaw(cmd.Context(), "/explain", body)
			if err != nil {
				return err
			}
			if err := outputRawEnvelope(raw); err != nil {
				return err
			}
			if status >= 400 {
				return fmt.Errorf("explain failed (HTTP %d)", status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider to use (default from server config)")
	cmd.Flags().StringVar(&language, "language", "", "Language hint for the prompt")
	cmd.Flags().StringVar(&target, "target", "", "Artifact name for call records (default: file path)")
	return cmd
}
