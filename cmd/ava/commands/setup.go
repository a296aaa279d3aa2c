package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avachat/ava/pkg/ava/assistant"
)

// newSetupCmd creates the `ava setup` command that stores the LLM API key in
// the OS keyring.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Store the LLM API key in the OS keyring",
		Long: `Prompt for the LLM API key and save it in the operating system's
keyring, so it never has to live in config.yaml or .env.`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	if !assistant.KeyringAvailable() {
		return fmt.Errorf("OS keyring is not available; set AVA_API_KEY in .env instead")
	}

	key, err := assistant.ReadSecret("API key: ")
	if err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("no key entered")
	}

	if err := assistant.MigrateKeyToKeyring(strings.TrimSpace(key), logger); err != nil {
		return err
	}

	fmt.Println("API key stored. You can remove it from config.yaml and .env.")
	return nil
}
