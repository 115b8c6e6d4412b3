package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/openclaw-sentinel/internal/export"
)

func exportCmd() *cobra.Command {
	var (
		flags  changeFlags
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export change records to an xlsx workbook or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			toStdout := output == "" || output == "-"
			f := export.FormatForPath(output)
			if toStdout {
				f = export.FormatJSON
			}
			if format != "" {
				parsed, err := export.ParseFormat(format)
				if err != nil {
					return fmt.Errorf("export: %w", err)
				}
				f = parsed
			}

			filter, err := flags.filter()
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("export: connecting to store: %w", err)
			}
			defer func() { _ = st.Close() }()

			changes, err := st.ListChanges(ctx, filter)
			if err != nil {
				return fmt.Errorf("export: listing changes: %w", err)
			}

			var w io.Writer = os.Stdout
			if !toStdout {
				file, createErr := os.Create(output)
				if createErr != nil {
					return fmt.Errorf("export: creating output file: %w", createErr)
				}
				defer func() { _ = file.Close() }()
				w = file
			}

			if err := export.Write(w, f, cfg.Account.Name, changes, time.Now().UTC()); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if !toStdout {
				fmt.Fprintf(os.Stderr, "Exported %d changes to %s\n", len(changes), output)
			}
			return nil
		},
	}

	flags.register(cmd, 0)
	cmd.Flags().StringVar(&format, "format", "", "output format: xlsx or json (default from the output extension)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file path (- for stdout)")
	return cmd
}
