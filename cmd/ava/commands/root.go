// Package commands implements the ava CLI commands using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/avachat/ava/pkg/ava/assistant"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ava",
		Short: "Ava - multimodal personal assistant",
		Long: `Ava is a personal assistant that answers over text, voice and images,
remembers your conversations, and handles your news, email and daily summary.

Examples:
  ava chat "Where do I live?"
  ava serve
  ava digest collect
  ava setup`,
		Version: version,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newServeCmd(),
		newDigestCmd(),
		newSetupCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig resolves the config file from the --config flag or the standard
// locations and loads it, falling back to defaults when no file exists.
func loadConfig(cmd *cobra.Command) (*assistant.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = assistant.FindConfigFile()
	}
	if path == "" {
		return assistant.DefaultConfig(), nil
	}

	cfg, err := assistant.LoadConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// buildLogger applies the --verbose flag on top of the config's log level.
func buildLogger(cmd *cobra.Command, cfg *assistant.Config) *slog.Logger {
	logging := cfg.Logging
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		logging.Level = "debug"
	}
	return assistant.NewLogger(logging, os.Stderr)
}
