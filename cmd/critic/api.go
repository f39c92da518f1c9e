package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running critic server via HTTP.

These commands require a running server (critic serve).
Use --server to specify a custom server URL.

Examples:
  critic api health              # Check server health
  critic api review main.go      # Review a file via the server
  critic api calls list          # List recorded LLM calls
  critic api providers           # List configured providers`,
}

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "LLM call history commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	// Review flows at top level of api
	apiCmd.AddCommand((&endpoints.ReviewEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReviewSarifEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ExplainEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.AnalyzeEndpoint{}).Command(getServerURL))

	// Call history as subcommand group
	callsCmd.AddCommand((&endpoints.ListCallsEndpoint{}).Command(getServerURL))
	callsCmd.AddCommand((&endpoints.GetCallEndpoint{}).Command(getServerURL))

	// Introspection
	apiCmd.AddCommand((&endpoints.ProvidersEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.PromptsEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerUIEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(apiCmd)
}
