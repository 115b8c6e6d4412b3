package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/openclaw-sentinel/internal/lock"
	"github.com/ajitpratap0/openclaw-sentinel/internal/publish"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to configured services",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			allOK := true

			report := func(name string, err error) {
				if err != nil {
					fmt.Printf("%s: FAIL (%v)\n", name, err)
					allOK = false
					return
				}
				fmt.Printf("%s: OK\n", name)
			}

			// Store
			st, err := newStore(ctx, logger)
			if err == nil {
				err = st.Ping(ctx)
				_ = st.Close()
			}
			report("Store ("+cfg.Store.Backend+")", err)

			// MCP tool server
			if cfg.MCP.Configured() {
				client, _, dialErr := dialTools(ctx, logger)
				if dialErr == nil {
					_ = client.Close()
				}
				report("MCP server", dialErr)
			}

			if cfg.Redis.Enabled {
				locker, redisErr := lock.NewRedisLocker(ctx, lock.RedisConfig{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				}, logger)
				if redisErr == nil {
					redisErr = locker.Ping(ctx)
					_ = locker.Close()
				}
				report("Redis", redisErr)
			}

			if cfg.NATS.Enabled {
				pub, natsErr := publish.Connect(publish.Config{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject, Name: clientName}, logger)
				if natsErr == nil {
					_ = pub.Close()
				}
				report("NATS", natsErr)
			}

			if cfg.Neo4j.Enabled {
				writer, graphErr := newGraphWriter(ctx, logger)
				if graphErr == nil {
					_ = writer.Close(ctx)
				}
				report("Neo4j", graphErr)
			}

			// Claude API key
			if cfg.Sources.Chat.Extract {
				if cfg.Claude.APIKey == "" {
					report("Claude API", fmt.Errorf("no API key configured"))
				} else {
					report("Claude API", nil)
				}
			}

			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
