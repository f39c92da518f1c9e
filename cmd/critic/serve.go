package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/server"
)

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the critic server",
	Long: `Start the critic HTTP server.

The server exposes the review flows over HTTP, keeps an in-memory
history of LLM calls, and reloads providers when the config file
changes.

Examples:
  critic serve                       # Listen on :8080 (or server.listen_addr)
  critic serve --listen :3000        # Listen on a custom address
  critic serve --config custom.yaml  # Use a custom config file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}))

		h, err := criticHome()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := newConfigManager(h)
		if err != nil {
			return err
		}
		cm.WatchConfig()

		srv, err := server.New(server.Config{
			ListenAddr:    serveListenAddr,
			ConfigManager: cm,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Blocks until the context is cancelled
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Listen address (default from config, else :8080)")
	rootCmd.AddCommand(serveCmd)
}
