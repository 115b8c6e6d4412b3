package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajitpratap0/openclaw-sentinel/internal/alert"
	"github.com/ajitpratap0/openclaw-sentinel/internal/config"
	"github.com/ajitpratap0/openclaw-sentinel/internal/detector"
	"github.com/ajitpratap0/openclaw-sentinel/internal/digest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/graph"
	"github.com/ajitpratap0/openclaw-sentinel/internal/ingest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/lock"
	"github.com/ajitpratap0/openclaw-sentinel/internal/mcpclient"
	"github.com/ajitpratap0/openclaw-sentinel/internal/notify"
	"github.com/ajitpratap0/openclaw-sentinel/internal/pipeline"
	"github.com/ajitpratap0/openclaw-sentinel/internal/publish"
	"github.com/ajitpratap0/openclaw-sentinel/internal/scoring"
	"github.com/ajitpratap0/openclaw-sentinel/internal/store"
)

const clientName = "openclaw-sentinel"

// app holds the wired collaborators of one CLI invocation.
type app struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	closers  []func()
}

// Close releases every connection in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		if cfg.Postgres.AutoMigrate {
			if err := store.RunMigrations(cfg.Postgres.DSN, store.MigrateUp, logger); err != nil {
				return nil, fmt.Errorf("migrating schema: %w", err)
			}
		}
		st, err := store.NewPostgresStore(ctx, store.PostgresConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		}, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		logger.Debug("using in-memory store; data does not outlive the process")
		return store.NewMemoryStore(), nil
	}
}

func dialTools(ctx context.Context, logger *slog.Logger) (*mcpclient.Client, mcpclient.ToolCaller, error) {
	client, err := mcpclient.Dial(ctx, mcpclient.Config{
		Command: cfg.MCP.Command,
		Args:    cfg.MCP.Args,
		URL:     cfg.MCP.URL,
		Timeout: cfg.MCP.Timeout,
	}, clientName, version, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, mcpclient.NewRetrying(client, cfg.MCP.MaxRetries, cfg.MCP.Backoff, logger), nil
}

func newSources(tools mcpclient.ToolCaller, logger *slog.Logger) []ingest.Source {
	src := cfg.Sources
	var sources []ingest.Source

	if src.Chat.Enabled {
		var extractor ingest.Extractor
		if src.Chat.Extract {
			extractor = ingest.NewClaudeExtractor(cfg.Claude.APIKey, cfg.Claude.Model, cfg.Account.Name, logger)
		}
		query := src.Chat.Query
		if query == "" {
			query = cfg.Account.Name
		}
		sources = append(sources, ingest.NewChatSource(tools, ingest.ChatConfig{
			Query:    query,
			Limit:    src.Chat.Limit,
			Programs: src.Chat.Programs,
		}, extractor, logger))
	}
	if src.Wiki.Enabled {
		sources = append(sources, ingest.NewWikiSource(tools, ingest.WikiConfig{
			PageIDs:       src.Wiki.PageIDs,
			SearchTag:     src.Wiki.SearchTag,
			Programs:      src.Wiki.Programs,
			CompanyDomain: cfg.Account.Domain,
			Company:       cfg.Account.Name,
		}, logger))
	}
	if src.Filings.Enabled {
		sources = append(sources, ingest.NewFilingsSource(ingest.FilingsConfig{
			CIK:               src.Filings.CIK,
			Company:           cfg.Account.Name,
			UserAgent:         src.Filings.UserAgent,
			Lookback:          src.Filings.Lookback,
			RequestsPerSecond: src.Filings.RequestsPerSecond,
		}, logger))
	}
	if src.News.Enabled {
		sources = append(sources, ingest.NewNewsSource(ingest.NewsConfig{
			FeedURL:   src.News.FeedURL,
			Limit:     src.News.Limit,
			Lookback:  src.News.Lookback,
			UserAgent: src.Filings.UserAgent,
		}, logger))
	}
	if len(src.Files.Paths) > 0 {
		sources = append(sources, ingest.NewFileSource(src.Files.Paths, logger))
	}
	return sources
}

// buildApp connects the store and every enabled collaborator and assembles
// the pipeline. Enabled collaborators that cannot be reached fail the build.
func buildApp(ctx context.Context, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	st, err := newStore(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, func() { _ = st.Close() })

	needTools := cfg.Sources.Chat.Enabled || cfg.Sources.Wiki.Enabled ||
		(!cfg.Alerting.DryRun && cfg.Alerting.Channel != "")
	var tools mcpclient.ToolCaller
	if needTools && cfg.MCP.Configured() {
		client, caller, dialErr := dialTools(ctx, logger)
		if dialErr != nil {
			return nil, fmt.Errorf("connecting to mcp server: %w", dialErr)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		tools = caller
	}

	var dispatcher alert.Dispatcher
	switch {
	case cfg.Alerting.DryRun:
		dispatcher = notify.NewLogNotifier(logger)
	case tools != nil && cfg.Alerting.Channel != "":
		dispatcher = notify.NewSlackNotifier(tools, logger)
	default:
		if cfg.Alerting.Channel != "" {
			logger.Warn("alerting.channel is set but no mcp server is configured; alerts are logged only")
		}
		dispatcher = notify.NewLogNotifier(logger)
	}

	sources := newSources(tools, logger)
	if len(sources) == 0 {
		logger.Warn("no sources enabled; cycles will fail until one is configured")
	}
	runner := ingest.NewRunner(sources, cfg.Sources.Timeout, logger)

	scorer := scoring.NewScorer(cfg.Scoring, cfg.Account.Name)
	det := detector.New(scorer, logger)
	gen := digest.NewGenerator(digest.Config{
		Account:  cfg.Account.Name,
		Window:   cfg.Digest.Window,
		MaxWords: cfg.Digest.MaxWords,
	}, logger)
	alertCfg := alert.Config{
		Account:     cfg.Account.Name,
		Channel:     cfg.Alerting.Channel,
		Threshold:   cfg.Alerting.Threshold,
		DedupWindow: cfg.Alerting.DedupWindow,
		MaxPerDay:   cfg.Alerting.MaxPerDay,
		Concurrency: cfg.Alerting.Concurrency,
	}

	var opts []pipeline.Option

	if cfg.Redis.Enabled {
		locker, lockErr := lock.NewRedisLocker(ctx, lock.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
		}, logger)
		if lockErr != nil {
			return nil, fmt.Errorf("connecting to redis: %w", lockErr)
		}
		a.closers = append(a.closers, func() { _ = locker.Close() })
		opts = append(opts, pipeline.WithLocker(locker))
	}

	if cfg.NATS.Enabled {
		pub, pubErr := publish.Connect(publish.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Name:    clientName,
		}, logger)
		if pubErr != nil {
			return nil, fmt.Errorf("connecting to nats: %w", pubErr)
		}
		a.closers = append(a.closers, func() { _ = pub.Close() })
		opts = append(opts, pipeline.WithSinks(pub), pipeline.WithAlertPublisher(pub))
	}

	if cfg.Neo4j.Enabled {
		writer, graphErr := newGraphWriter(ctx, logger)
		if graphErr != nil {
			return nil, graphErr
		}
		a.closers = append(a.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = writer.Close(closeCtx)
		})
		opts = append(opts, pipeline.WithSinks(graph.NewProjector(writer, cfg.Neo4j.BatchSize, logger)))
	}

	a.pipeline = pipeline.New(runner, st, det, alertCfg, gen, dispatcher, logger, opts...)
	return a, nil
}

func newGraphWriter(ctx context.Context, logger *slog.Logger) (*graph.Neo4jWriter, error) {
	writer, err := graph.NewNeo4jWriter(ctx, graph.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}
	if err := writer.EnsureConstraints(ctx); err != nil {
		_ = writer.Close(ctx)
		return nil, fmt.Errorf("creating neo4j constraints: %w", err)
	}
	return writer, nil
}

// isAllSourcesFailed reports whether err carries a failed cycle report.
func isAllSourcesFailed(err error) bool {
	return errors.Is(err, pipeline.ErrAllSourcesFailed)
}
