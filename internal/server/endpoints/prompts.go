package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/prompts"
	"github.com/jackzampolin/critic/internal/svcctx"
)

// PromptsResponse lists the embedded prompt templates.
type PromptsResponse struct {
	Prompts []prompts.EmbeddedPrompt `json:"prompts"`
	Total   int                      `json:"total"`
}

// PromptsEndpoint handles GET /prompts.
type PromptsEndpoint struct{}

func (e *PromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/prompts", e.handler
}

func (e *PromptsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List prompts
//	@Description	Get the embedded prompt templates used by the review flows
//	@Tags			prompts
//	@Produce		json
//	@Success		200	{object}	PromptsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/prompts [get]
func (e *PromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rev := svcctx.ReviewerFrom(r.Context())
	if rev == nil {
		writeError(w, http.StatusInternalServerError, "reviewer not available")
		return
	}

	all := rev.Prompts()
	writeJSON(w, http.StatusOK, PromptsResponse{Prompts: all, Total: len(all)})
}

func (e *PromptsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List embedded prompt templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PromptsResponse
			if err := client.Get(cmd.Context(), "/prompts", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
