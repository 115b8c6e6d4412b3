package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/openclaw-sentinel/internal/api"
	"github.com/ajitpratap0/openclaw-sentinel/internal/pipeline"
)

func serveCmd() *cobra.Command {
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/JSON API server and the cycle and digest scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			a, err := buildApp(ctx, logger)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			srv := api.NewServer(a.store, a.pipeline, logger, cfg.API.AuthToken, cfg.API.CORSOrigins)

			if cfg.API.AuthToken == "" {
				logger.Warn("HTTP API: auth is DISABLED; set OPENCLAW_SENTINEL_API_AUTH_TOKEN or api.auth_token for production use")
			}

			httpSrv := &http.Server{
				Addr:              cfg.API.ListenAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      10 * time.Minute, // POST /v1/cycles runs a full cycle
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP API server starting", "addr", cfg.API.ListenAddr)
				if listenErr := httpSrv.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
					errCh <- fmt.Errorf("serve: HTTP server: %w", listenErr)
				}
				close(errCh)
			}()

			a.pipeline.Announce(ctx, version)

			var schedule func(context.Context)
			if !noSchedule {
				sched := pipeline.NewScheduler(a.pipeline, cfg.Schedule.CycleInterval, cfg.Schedule.DigestInterval, cfg.Schedule.RunOnStart, logger)
				schedule = func(ctx context.Context) { _ = sched.Run(ctx) }
			}

			const shutdownTimeout = 10 * time.Second
			return serveUntil(ctx, errCh, schedule, func() error {
				logger.Info("shutting down")
				return api.Shutdown(httpSrv, shutdownTimeout)
			})
		},
	}

	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the API only; do not run scheduled cycles or digests")
	return cmd
}

// serveUntil runs schedule alongside the HTTP server until ctx is done or the
// server fails. On shutdown the HTTP server is stopped first. The scheduler is
// always cancelled and waited for before serveUntil returns, so callers can
// release shared resources afterwards.
func serveUntil(ctx context.Context, serveErr <-chan error, schedule func(context.Context), shutdown func() error) error {
	schedCtx, stopSched := context.WithCancel(ctx)
	defer stopSched()
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if schedule != nil {
			schedule(schedCtx)
		}
	}()

	select {
	case <-ctx.Done():
	case startErr := <-serveErr:
		stopSched()
		<-schedDone
		return startErr
	}

	shutdownErr := shutdown()
	stopSched()
	<-schedDone
	if shutdownErr != nil {
		return fmt.Errorf("serve: graceful shutdown: %w", shutdownErr)
	}

	// Drain serveErr in case ListenAndServe returned after Shutdown.
	if startErr := <-serveErr; startErr != nil {
		return startErr
	}
	return nil
}
