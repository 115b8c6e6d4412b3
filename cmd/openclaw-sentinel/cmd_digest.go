package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func digestCmd() *cobra.Command {
	var (
		send   bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build the weekly executive digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			if format != "text" && format != "json" {
				return fmt.Errorf("digest: unsupported format %q (use text or json)", format)
			}

			a, err := buildApp(ctx, logger)
			if err != nil {
				return fmt.Errorf("digest: %w", err)
			}
			defer a.Close()

			now := time.Now().UTC()
			if send {
				delivery, sendErr := a.pipeline.SendDigest(ctx, now)
				if sendErr != nil {
					return fmt.Errorf("digest: %w", sendErr)
				}
				if delivery.Sent {
					fmt.Fprintf(os.Stderr, "Digest sent to %s (%s)\n", delivery.Channel, delivery.DeliveryID)
				} else {
					fmt.Fprintln(os.Stderr, "Digest not sent: no alerting.channel configured")
				}
				fmt.Println(delivery.Digest.Text)
				return nil
			}

			d, err := a.pipeline.BuildDigest(ctx, now)
			if err != nil {
				return fmt.Errorf("digest: %w", err)
			}
			if format == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(d); encErr != nil {
					return fmt.Errorf("digest: encoding JSON: %w", encErr)
				}
				return nil
			}
			fmt.Println(d.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&send, "send", false, "deliver the digest to the alert channel")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}
