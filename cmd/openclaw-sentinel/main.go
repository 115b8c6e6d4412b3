package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/openclaw-sentinel/internal/api"
	"github.com/ajitpratap0/openclaw-sentinel/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg     *config.Config
	cfgFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:     "openclaw-sentinel",
		Short:   "OpenClaw Sentinel: account situational awareness",
		Long:    "Sentinel ingests account signals from chat, wiki, SEC filings and news, detects what changed since the last cycle, scores it, alerts on critical changes and writes a weekly executive digest.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.openclaw-sentinel/config.yaml)")

	rootCmd.AddCommand(
		runCmd(),
		detectCmd(),
		alertsCmd(),
		digestCmd(),
		diffCmd(),
		changesCmd(),
		cyclesCmd(),
		exportCmd(),
		serveCmd(),
		mcpCmd(),
		healthCmd(),
		migrateCmd(),
		configCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		switch strings.ToLower(cfg.Logging.Level) {
		case "debug":
			level = slog.LevelDebug
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// parseSinceFlag resolves a --since value relative to now.
func parseSinceFlag(v string) (time.Time, error) {
	since, err := api.ParseSince(v, time.Now().UTC())
	if err != nil {
		return time.Time{}, fmt.Errorf("--since: %w", err)
	}
	return since, nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
