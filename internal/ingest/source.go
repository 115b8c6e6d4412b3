// Package ingest runs the source adapters that turn chat, wiki, filing and
// news content into normalized entities.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/openclaw-sentinel/internal/metrics"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// Batch is what one source produced in one run.
type Batch struct {
	// Items is the number of raw items (messages, pages, filings, articles) read.
	Items    int
	Entities []models.Entity
}

// Source is a single adapter. Fetch returns entities observed since the given
// time; a zero since lets the source pick its own lookback.
type Source interface {
	Name() string
	Fetch(ctx context.Context, since time.Time) (Batch, error)
}

// Result is the merged outcome of running every source once.
type Result struct {
	Entities []models.Entity
	Runs     []models.SourceRun
	Status   models.RunStatus
}

// Runner executes sources concurrently and waits for all of them.
type Runner struct {
	sources []Source
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a runner. timeout bounds each source run; 0 means no limit.
func NewRunner(sources []Source, timeout time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		sources: sources,
		timeout: timeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sources returns the configured source names.
func (r *Runner) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Run fetches from every source. A failing source is recorded in its
// SourceRun and does not stop the others. Entities are merged in source order.
func (r *Runner) Run(ctx context.Context, since time.Time) Result {
	runs := make([]models.SourceRun, len(r.sources))
	batches := make([][]models.Entity, len(r.sources))

	var g errgroup.Group
	for i, src := range r.sources {
		g.Go(func() error {
			runs[i], batches[i] = r.runOne(ctx, src, since)
			return nil
		})
	}
	_ = g.Wait()

	var entities []models.Entity
	for _, b := range batches {
		entities = append(entities, b...)
	}
	return Result{
		Entities: entities,
		Runs:     runs,
		Status:   models.StatusFromRuns(runs),
	}
}

func (r *Runner) runOne(ctx context.Context, src Source, since time.Time) (models.SourceRun, []models.Entity) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	name := src.Name()
	start := r.now()
	run := models.SourceRun{Source: name, StartedAt: start}
	r.logger.Info("source run started", "source", name, "since", since)

	batch, err := fetchSafely(ctx, src, since)
	run.Duration = r.now().Sub(start)
	metrics.SourceDuration.WithLabelValues(name).Observe(run.Duration.Seconds())

	if err != nil {
		run.Status = models.StatusFailed
		run.Error = err.Error()
		metrics.SourceRunsTotal.WithLabelValues(name, string(run.Status)).Inc()
		r.logger.Error("source run failed", "source", name, "duration", run.Duration, "error", err)
		return run, nil
	}

	run.Status = models.StatusSuccess
	run.ItemsIngested = batch.Items
	run.Entities = len(batch.Entities)
	metrics.SourceRunsTotal.WithLabelValues(name, string(run.Status)).Inc()
	metrics.EntitiesIngested.WithLabelValues(name).Add(float64(run.Entities))
	r.logger.Info("source run completed", "source", name,
		"items", run.ItemsIngested, "entities", run.Entities, "duration", run.Duration)
	return run, batch.Entities
}

// fetchSafely converts a panicking adapter into a failed run.
func fetchSafely(ctx context.Context, src Source, since time.Time) (batch Batch, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source %s panicked: %v", src.Name(), p)
		}
	}()
	return src.Fetch(ctx, since)
}
