package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/internal/store"
)

// changeFlags are the filters shared by the changes and export commands.
type changeFlags struct {
	since      string
	minScore   int
	unsent     bool
	entityType string
	cycle      string
	limit      int
}

func (f *changeFlags) register(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().StringVar(&f.since, "since", "", "only changes detected after this time (RFC 3339, YYYY-MM-DD or a duration)")
	cmd.Flags().IntVar(&f.minScore, "min-score", 0, "minimum significance score")
	cmd.Flags().BoolVar(&f.unsent, "unsent", false, "only changes that have not been alerted")
	cmd.Flags().StringVar(&f.entityType, "type", "", "filter by entity type")
	cmd.Flags().StringVar(&f.cycle, "cycle", "", "filter by cycle id")
	cmd.Flags().IntVar(&f.limit, "limit", defaultLimit, "max results (0 for all)")
}

func (f *changeFlags) filter() (store.ChangeFilter, error) {
	filter := store.ChangeFilter{
		UnsentOnly: f.unsent,
		CycleID:    f.cycle,
		Order:      store.OrderRecent,
		Limit:      f.limit,
	}
	if f.since != "" {
		since, err := parseSinceFlag(f.since)
		if err != nil {
			return filter, err
		}
		filter.Since = &since
	}
	if f.minScore > 0 {
		filter.MinScore = &f.minScore
	}
	if f.entityType != "" {
		et := models.EntityType(f.entityType)
		if !et.IsKnown() {
			return filter, fmt.Errorf("--type: unknown entity type %q", f.entityType)
		}
		filter.EntityType = &et
	}
	return filter, nil
}

func changesCmd() *cobra.Command {
	var (
		flags   changeFlags
		byScore bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List stored change records",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			filter, err := flags.filter()
			if err != nil {
				return fmt.Errorf("changes: %w", err)
			}
			if byScore {
				filter.Order = store.OrderScore
			}

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("changes: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			changes, err := st.ListChanges(ctx, filter)
			if err != nil {
				return fmt.Errorf("changes: listing: %w", err)
			}

			if asJSON {
				if changes == nil {
					changes = []models.ChangeRecord{}
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(changes); encErr != nil {
					return fmt.Errorf("changes: encoding JSON: %w", encErr)
				}
				return nil
			}
			for i := range changes {
				c := &changes[i]
				sent := ""
				if c.AlertSent {
					sent = " (alerted)"
				}
				fmt.Printf("[%d] %s %s%s\n", i+1, c.ChangeTimestamp.Format("2006-01-02 15:04"), c.ChangeID, sent)
				printChanges(changes[i : i+1])
			}
			if len(changes) == 0 {
				fmt.Println("No changes found.")
			}
			return nil
		},
	}

	flags.register(cmd, 50)
	cmd.Flags().BoolVar(&byScore, "by-score", false, "order by score instead of recency")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print change records as JSON")
	return cmd
}
