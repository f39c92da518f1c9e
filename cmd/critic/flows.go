package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/llmcall"
	"github.com/jackzampolin/critic/internal/providers"
	"github.com/jackzampolin/critic/internal/reviewer"
)

// localReviewer builds the full review stack in process, for the
// one-shot flow commands that run without a server.
func localReviewer() (*reviewer.Reviewer, error) {
	h, err := criticHome()
	if err != nil {
		return nil, err
	}
	cm, err := newConfigManager(h)
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()

	registry := providers.NewRegistry()
	registry.SetLogger(slog.Default())
	registry.Reload(cfg.ToProviderRegistryConfig())

	store := llmcall.NewStore(cfg.History.MaxCalls)
	return reviewer.New(reviewer.Config{
		Registry:        registry,
		Recorder:        llmcall.NewRecorder(store),
		DefaultProvider: cfg.Defaults.LLMProvider,
		Logger:          slog.Default(),
	}), nil
}

// readCodeFile loads the file a flow command was pointed at.
func readCodeFile(path string) (string, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(code), nil
}

// resolveFormat maps a --format value onto an output format, falling
// back to the global --output selection when unset. The sarif format is
// handled by the review command itself.
func resolveFormat(format string) (api.OutputFormat, error) {
	switch format {
	case "":
		return api.GetOutputFormat(), nil
	case "json":
		return api.OutputFormatJSON, nil
	case "yaml":
		return api.OutputFormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or yaml)", format)
}

// printEnvelope renders a wire envelope to stdout or --out.
func printEnvelope(envelope json.RawMessage, format, outPath string) error {
	var doc map[string]any
	if err := json.Unmarshal(envelope, &doc); err != nil {
		return fmt.Errorf("malformed envelope: %w", err)
	}

	f, err := resolveFormat(format)
	if err != nil {
		return err
	}
	if outPath != "" {
		file, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		return api.OutputTo(file, f, doc)
	}
	return api.OutputTo(os.Stdout, f, doc)
}

// extractionError turns a failed outcome into the command's exit error.
// The envelope has already been printed; the error just sets the exit
// code and names the reason.
func extractionError(outcome *reviewer.Outcome) error {
	if outcome.OK() {
		return nil
	}
	return fmt.Errorf("extraction failed: %s", outcome.Failure.Reason)
}
