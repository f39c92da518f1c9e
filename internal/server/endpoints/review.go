package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/review"
	"github.com/jackzampolin/critic/internal/reviewer"
	"github.com/jackzampolin/critic/internal/svcctx"
)

// ReviewBody is the request body for the review endpoints.
type ReviewBody struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
	Provider string `json:"provider,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Target   string `json:"target,omitempty"`
}

// decodeBody decodes a JSON request body, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// checkFlowInputs validates the fields shared by the review flows,
// answering 400 on the first problem. Provider and mode failures are
// client errors, not provider errors: the call never leaves the server.
func checkFlowInputs(w http.ResponseWriter, r *http.Request, code, provider, mode string) bool {
	if strings.TrimSpace(code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return false
	}
	if mode != "" {
		if _, err := review.ParseMode(mode); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return false
		}
	}
	if provider != "" {
		registry := svcctx.RegistryFrom(r.Context())
		if registry != nil && !registry.HasLLM(provider) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown provider: %s", provider))
			return false
		}
	}
	return true
}

// envelopeStatus maps an outcome onto the HTTP status for its envelope:
// 200 when it carries a document, 422 when extraction failed.
func envelopeStatus(o *reviewer.Outcome) int {
	if o.OK() {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

// ReviewEndpoint handles POST /review.
type ReviewEndpoint struct{}

func (e *ReviewEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/review", e.handler
}

func (e *ReviewEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Review source code
//	@Description	Run an LLM code review and return the validated result envelope
//	@Tags			review
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReviewBody	true	"Code to review"
//	@Success		200		{object}	map[string]any	"{\"response\": ReviewResult}"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	map[string]any	"{\"error\": string, \"raw_response\": string}"
//	@Failure		502		{object}	ErrorResponse
//	@Router			/review [post]
func (e *ReviewEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var body ReviewBody
	if !decodeBody(w, r, &body) {
		return
	}
	if !checkFlowInputs(w, r, body.Code, body.Provider, body.Mode) {
		return
	}

	rev := svcctx.ReviewerFrom(r.Context())
	if rev == nil {
		writeError(w, http.StatusInternalServerError, "reviewer not available")
		return
	}

	outcome, err := rev.Review(r.Context(), reviewer.ReviewRequest{
		Code:     body.Code,
		Language: body.Language,
		Provider: body.Provider,
		Mode:     body.Mode,
		Target:   body.Target,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeEnvelope(w, envelopeStatus(outcome), outcome.Envelope)
}

func (e *ReviewEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider, mode, language, target string
	cmd := &cobra.Command{
		Use:   "review <file>",
		Short: "Review a source file via the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := reviewBodyFromFile(args[0], language, provider, mode, target)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			raw, status, err := client.PostRaw(cmd.Context(), "/review", body)
			if err != nil {
				return err
			}
			if err := outputRawEnvelope(raw); err != nil {
				return err
			}
			if status >= 400 {
				return fmt.Errorf("review failed (HTTP %d)", status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider to use (default from server config)")
	cmd.Flags().StringVar(&mode, "mode", "", "Extraction mode: structured or freetext")
	cmd.Flags().StringVar(&language, "language", "", "Language hint for the prompt")
	cmd.Flags().StringVar(&target, "target", "", "Artifact name for call records (default: file path)")
	return cmd
}

// ReviewSarifEndpoint handles POST /review/sarif.
type ReviewSarifEndpoint struct{}

func (e *ReviewSarifEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/review/sarif", e.handler
}

func (e *ReviewSarifEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Review source code and return SARIF
//	@Description	Run an LLM code review and render the findings as a SARIF 2.1.0 report
//	@Tags			review
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReviewBody	true	"Code to review"
//	@Success		200		{object}	map[string]any	"SARIF 2.1.0 report"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		422		{object}	map[string]any	"{\"error\": string, \"raw_response\": string}"
//	@Failure		502		{object}	ErrorResponse
//	@Router			/review/sarif [post]
func (e *ReviewSarifEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var body ReviewBody
	if !decodeBody(w, r, &body) {
		return
	}
	if !checkFlowInputs(w, r, body.Code, body.Provider, body.Mode) {
		return
	}

	rev := svcctx.ReviewerFrom(r.Context())
	if rev == nil {
		writeError(w, http.StatusInternalServerError, "reviewer not available")
		return
	}

	outcome, err := rev.Review(r.Context(), reviewer.ReviewRequest{
		Code:     body.Code,
		Language: body.Language,
		Provider: body.Provider,
		Mode:     body.Mode,
		Target:   body.Target,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !outcome.OK() {
		writeEnvelope(w, http.StatusUnprocessableEntity, outcome.Envelope)
		return
	}

	result, err := review.DecodeReview(outcome.Extraction.Doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	target := body.Target
	if target == "" {
		target = "code"
	}
	report, err := review.ToSARIF(result, target)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := report.Write(w); err != nil {
		if log := svcctx.LoggerFrom(r.Context()); log != nil {
			log.Error("failed to write sarif report", "error", err)
		}
	}
}

func (e *ReviewSarifEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider, mode, language, target string
	cmd := &cobra.Command{
		Use:   "sarif <file>",
		Short: "Review a source file and print SARIF findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := reviewBodyFromFile(args[0], language, provider, mode, target)
			if err != nil {
				return err
			}
			client := api.NewClient(getServerURL())
			raw, status, err := client.PostRaw(cmd.Context(), "/review/sarif", body)
			if err != nil {
				return err
			}
			if status >= 400 {
				if err := outputRawEnvelope(raw); err != nil {
					return err
				}
				return fmt.Errorf("review failed (HTTP %d)", status)
			}
			fmt.Println(string(raw))
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider to use (default from server config)")
	cmd.Flags().StringVar(&mode, "mode", "", "Extraction mode: structured or freetext")
	cmd.Flags().StringVar(&language, "language", "", "Language hint for the prompt")
	cmd.Flags().StringVar(&target, "target", "", "SARIF artifact name (default: file path)")
	return cmd
}

// reviewBodyFromFile builds a review body from a source file on disk.
func reviewBodyFromFile(path, language, provider, mode, target string) (ReviewBody, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return ReviewBody{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if target == "" {
		target = path
	}
	return ReviewBody{
		Code:     string(code),
		Language: language,
		Provider: provider,
		Mode:     mode,
		Target:   target,
	}, nil
}

// outputRawEnvelope renders a raw wire envelope per the configured output
// format. Non-JSON payloads are printed verbatim.
func outputRawEnvelope(raw []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	return api.Output(doc)
}
