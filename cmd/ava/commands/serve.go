package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avachat/ava/pkg/ava/assistant"
)

// newServeCmd creates the `ava serve` command that runs the webhook daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant as a daemon with the WhatsApp webhook",
		Long: `Start the assistant as a long-running service: the WhatsApp webhook
listens for incoming messages and the daily digest collector runs on its
schedule.

Examples:
  ava serve
  ava serve --config ./ava.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)
	assistant.ResolveAPIKey(cfg, logger)

	a, err := assistant.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Serve(ctx)
}
