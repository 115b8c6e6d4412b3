package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func alertsCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Deliver alerts for unsent critical changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			if dryRun {
				cfg.Alerting.DryRun = true
			}

			a, err := buildApp(ctx, logger)
			if err != nil {
				return fmt.Errorf("alerts: %w", err)
			}
			defer a.Close()

			sent, err := a.pipeline.ProcessAlerts(ctx)
			if err != nil {
				return fmt.Errorf("alerts: %w", err)
			}
			for i := range sent {
				fmt.Printf("[%d %s] %s (%s)\n", sent[i].Score, sent[i].Level, truncate(sent[i].Summary, 90), sent[i].DeliveryID)
			}
			fmt.Printf("%d alerts sent.\n", len(sent))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log alerts instead of sending them")
	return cmd
}
