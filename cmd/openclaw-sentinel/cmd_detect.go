package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Detect changes between the two latest stored cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			a, err := buildApp(ctx, logger)
			if err != nil {
				return fmt.Errorf("detect: %w", err)
			}
			defer a.Close()

			changes, err := a.pipeline.Detect(ctx)
			if err != nil {
				return fmt.Errorf("detect: %w", err)
			}
			if len(changes) == 0 {
				fmt.Println("No changes detected.")
				return nil
			}
			fmt.Printf("%d changes detected:\n", len(changes))
			printChanges(changes)
			return nil
		},
	}
}
