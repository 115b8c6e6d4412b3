package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/internal/pipeline"
)

func runCmd() *cobra.Command {
	var (
		since  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one monitoring cycle: ingest, detect, alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			from, err := parseSinceFlag(since)
			if err != nil {
				return err
			}

			a, err := buildApp(ctx, logger)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			defer a.Close()

			report, err := a.pipeline.RunCycle(ctx, from)
			if err != nil && !(isAllSourcesFailed(err) && report != nil) {
				return fmt.Errorf("run: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return fmt.Errorf("run: encoding report: %w", encErr)
				}
			} else {
				printReport(report)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only ingest signals after this time (RFC 3339, YYYY-MM-DD or a duration such as 72h)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cycle report as JSON")
	return cmd
}

func printReport(r *pipeline.CycleReport) {
	c := r.Cycle
	fmt.Printf("Cycle %s: %s (%d entities, %d changes, %d alerts)\n",
		c.ID, c.Status, c.EntityCount, len(r.Changes), len(r.Alerts))
	for _, run := range c.Runs {
		line := fmt.Sprintf("  %-8s %-8s items=%d entities=%d %s", run.Source, run.Status, run.ItemsIngested, run.Entities, run.Duration.Round(time.Millisecond))
		if run.Error != "" {
			line += " error=" + truncate(run.Error, 80)
		}
		fmt.Println(line)
	}
	printChanges(r.Changes)
	for i := range r.Alerts {
		fmt.Printf("  alert -> %s: %s\n", r.Alerts[i].Channel, truncate(r.Alerts[i].Summary, 80))
	}
}

func printChanges(changes []models.ChangeRecord) {
	for i := range changes {
		c := &changes[i]
		field := ""
		if c.FieldChanged != "" {
			field = "." + c.FieldChanged
		}
		fmt.Printf("  [%3d %-8s] %-8s %s%s: %s\n",
			c.SignificanceScore, c.SignificanceLevel, c.ChangeType, c.Key(), field, truncate(c.Rationale, 90))
	}
}
