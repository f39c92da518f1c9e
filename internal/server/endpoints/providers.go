package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/svcctx"
)

// ProviderInfo describes one configured LLM provider.
type ProviderInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Model   string `json:"model,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// ProvidersResponse lists the registered LLM providers.
type ProvidersResponse struct {
	Providers []ProviderInfo `json:"providers"`
	Default   string         `json:"default,omitempty"`
}

// ProvidersEndpoint handles GET /providers.
type ProvidersEndpoint struct{}

func (e *ProvidersEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/providers", e.handler
}

func (e *ProvidersEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List providers
//	@Description	Get the registered LLM providers and the default selection
//	@Tags			providers
//	@Produce		json
//	@Success		200	{object}	ProvidersResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/providers [get]
func (e *ProvidersEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	registry := svcctx.RegistryFrom(r.Context())
	if registry == nil {
		writeError(w, http.StatusInternalServerError, "provider registry not available")
		return
	}

	defaultProvider := ""
	if rev := svcctx.ReviewerFrom(r.Context()); rev != nil {
		defaultProvider = rev.DefaultProvider()
	}

	resp := ProvidersResponse{Default: defaultProvider}
	for _, name := range registry.ListLLM() {
		info := ProviderInfo{Name: name, Default: name == defaultProvider}
		if cfg, ok := registry.Config(name); ok {
			info.Type = cfg.Type
			info.Model = cfg.Model
			info.Mode = cfg.Mode
		}
		resp.Providers = append(resp.Providers, info)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ProvidersEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List registered LLM providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ProvidersResponse
			if err := client.Get(cmd.Context(), "/providers", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
