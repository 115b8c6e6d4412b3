package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/openclaw-sentinel/internal/detector"
	"github.com/ajitpratap0/openclaw-sentinel/internal/ingest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/internal/scoring"
)

func diffCmd() *cobra.Command {
	var (
		minScore int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "diff <previous> <current>",
		Short: "Detect and score changes between two entity files without touching the store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			previous, err := ingest.LoadEntities(args[0])
			if err != nil {
				return fmt.Errorf("diff: %w", err)
			}
			current, err := ingest.LoadEntities(args[1])
			if err != nil {
				return fmt.Errorf("diff: %w", err)
			}

			det := detector.New(scoring.NewScorer(cfg.Scoring, cfg.Account.Name), logger)
			var changes []models.ChangeRecord
			for _, c := range det.Detect(current, previous) {
				if c.SignificanceScore >= minScore {
					changes = append(changes, c)
				}
			}

			if asJSON {
				if changes == nil {
					changes = []models.ChangeRecord{}
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(changes); encErr != nil {
					return fmt.Errorf("diff: encoding JSON: %w", encErr)
				}
				return nil
			}
			if len(changes) == 0 {
				fmt.Println("No changes.")
				return nil
			}
			printChanges(changes)
			return nil
		},
	}

	cmd.Flags().IntVar(&minScore, "min-score", 0, "only show changes scoring at least this much")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print change records as JSON")
	return cmd
}
