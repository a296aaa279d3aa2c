package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avachat/ava/pkg/ava/digest"
)

// newDigestCmd creates the `ava digest` command group.
func newDigestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Manage the daily summary snapshots",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "collect",
			Short: "Collect today's emails, events and tasks now",
			RunE:  runDigestCollect,
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print today's snapshot",
			RunE:  runDigestShow,
		},
	)
	return cmd
}

func runDigestCollect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	if cfg.Digest.Collector.BaseURL == "" {
		return fmt.Errorf("digest.collector.base_url is not configured")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	collector := digest.NewCollector(cfg.Digest.Collector, logger)
	summary, err := collector.Collect(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Collected %d emails, %d events, %d tasks.\n",
		len(summary.Gmail), len(summary.Calendar), len(summary.Tasks))
	return nil
}

func runDigestShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	loader := digest.NewLoader(cfg.Digest.Collector.DataDir)
	summary, err := loader.Load(time.Now())
	if err != nil {
		return err
	}

	fmt.Print(summary.Render())
	return nil
}
