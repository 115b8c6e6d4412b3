package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cyclesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "List monitoring cycles, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("cycles: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			cycles, err := st.ListCycles(ctx, limit)
			if err != nil {
				return fmt.Errorf("cycles: listing: %w", err)
			}
			for i := range cycles {
				c := &cycles[i]
				fmt.Printf("%s  %s  %-7s  entities=%d  sources=%d\n",
					c.StartedAt.Format("2006-01-02 15:04"), c.ID, c.Status, c.EntityCount, len(c.Runs))
				for _, run := range c.Runs {
					if run.Error != "" {
						fmt.Printf("    %s: %s\n", run.Source, truncate(run.Error, 100))
					}
				}
			}
			if len(cycles) == 0 {
				fmt.Println("No cycles recorded.")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max cycles")
	return cmd
}
