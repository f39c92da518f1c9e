package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/critic/internal/api"
	"github.com/jackzampolin/critic/internal/config"
)

var configWriteDefault bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize configuration",
	Long: `Show the resolved configuration, or write a starter config file.

API keys are stored as ${ENV_VAR} references and are never resolved
in this output.

Examples:
  critic config                  # Show resolved configuration
  critic config --write-default  # Write ~/.critic/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := criticHome()
		if err != nil {
			return err
		}

		if configWriteDefault {
			if err := h.EnsureExists(); err != nil {
				return err
			}
			path := h.ConfigPath()
			if h.ConfigExists() {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Println("wrote default config to", path)
			return nil
		}

		cm, err := newConfigManager(h)
		if err != nil {
			return err
		}
		return api.Output(cm.Get())
	},
}

func init() {
	configCmd.Flags().BoolVar(&configWriteDefault, "write-default", false, "Write the default config to the home directory")
	rootCmd.AddCommand(configCmd)
}
