package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harun/recall/internal/config"
	"github.com/spf13/cobra"
)

var (
	configureProvider string
	configureFallback string
	configureModel    string
	configureBaseURL  string
	configureForce    bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a configuration file",
	Long: `Write a configuration file with defaults for the selected embedding provider.
Existing files are left alone unless --force is given.

The OpenAI API key is read from OPENAI_API_KEY or RECALL_REMOTE_API_KEY at
runtime and is never written by this command.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureProvider, "provider", "local", "embedding provider (local, openai, ollama)")
	configureCmd.Flags().StringVar(&configureFallback, "fallback", "none", "fallback provider (none, local, openai, ollama)")
	configureCmd.Flags().StringVar(&configureModel, "model", "", "embedding model (default depends on provider)")
	configureCmd.Flags().StringVar(&configureBaseURL, "base-url", "", "OpenAI-compatible endpoint for openai or ollama")
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	cfg.Provider = configureProvider
	cfg.Fallback = configureFallback
	cfg.Model = configureModel
	cfg.Remote.BaseURL = configureBaseURL
	if workspace != "" {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return err
		}
		cfg.WorkspacePath = abs
	}

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(w, "Index the workspace with: recall sync")
	return nil
}
