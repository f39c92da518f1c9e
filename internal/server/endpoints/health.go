package endpoints

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/svcctx"
	"github.com/jackzampolin/critic/version"
)

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Check server health
//	@Description	Liveness probe; returns ok while the HTTP server is responding
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: version.GitRelease})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:  %s\n", resp.Status)
			fmt.Printf("Version: %s\n", resp.Version)
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string          `json:"server"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Providers ProvidersStatus `json:"providers"`
	Calls     CallsStatus     `json:"calls"`
}

// ProvidersStatus summarizes the provider registry.
type ProvidersStatus struct {
	LLM     []string `json:"llm"`
	Default string   `json:"default,omitempty"`
}

// CallsStatus summarizes the recorded call history.
type CallsStatus struct {
	Recorded    int            `json:"recorded"`
	ByPromptKey map[string]int `json:"by_prompt_key,omitempty"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct {
	// StartedAt is set by the server when it builds the endpoint list.
	StartedAt time.Time
}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get detailed server status
//	@Description	Registered providers, default provider, call counts, and uptime
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Server:  "running",
		Version: version.GitRelease,
	}
	if !e.StartedAt.IsZero() {
		resp.Uptime = time.Since(e.StartedAt).Round(time.Second).String()
	}

	if registry := svcctx.RegistryFrom(r.Context()); registry != nil {
		resp.Providers.LLM = registry.ListLLM()
	}
	if rev := svcctx.ReviewerFrom(r.Context()); rev != nil {
		resp.Providers.Default = rev.DefaultProvider()
	}
	if store := svcctx.LLMCallStoreFrom(r.Context()); store != nil {
		resp.Calls.Recorded = store.Len()
		resp.Calls.ByPromptKey = store.CountByPromptKey()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
