// Package pipeline orchestrates a monitoring cycle: ingest from every source,
// snapshot, detect changes against the previous cycle, fan the results out to
// sinks and deliver alerts. It also assembles and sends the weekly digest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/openclaw-sentinel/internal/alert"
	"github.com/ajitpratap0/openclaw-sentinel/internal/detector"
	"github.com/ajitpratap0/openclaw-sentinel/internal/digest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/ingest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/lock"
	"github.com/ajitpratap0/openclaw-sentinel/internal/metrics"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/internal/store"
)

// ErrAllSourcesFailed is returned by RunCycle when no source produced data.
var ErrAllSourcesFailed = errors.New("all sources failed")

// historyLimit is how much alert history is loaded for deduplication.
const historyLimit = 100

// Sink receives every completed cycle. Sink failures never fail the cycle.
type Sink interface {
	Emit(ctx context.Context, cycle models.Cycle, entities []models.Entity, changes []models.ChangeRecord) error
}

// AlertPublisher is notified of every delivered alert.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, a *models.Alert) error
}

// CycleReport summarizes one RunCycle call.
type CycleReport struct {
	Cycle   models.Cycle          `json:"cycle"`
	Changes []models.ChangeRecord `json:"changes"`
	Alerts  []models.Alert        `json:"alerts"`
}

// DigestDelivery is the outcome of SendDigest.
type DigestDelivery struct {
	Digest     digest.Digest `json:"digest"`
	Sent       bool          `json:"sent"`
	Channel    string        `json:"channel,omitempty"`
	DeliveryID string        `json:"delivery_id,omitempty"`
}

// Status is a point-in-time overview of the monitored account.
type Status struct {
	Account   string        `json:"account"`
	Sources   []string      `json:"sources"`
	LastCycle *models.Cycle `json:"last_cycle,omitempty"`
	Stats     *store.Stats  `json:"stats"`
}

// Pipeline wires the collaborators of a monitoring cycle together.
type Pipeline struct {
	runner     *ingest.Runner
	store      store.Store
	detector   *detector.Detector
	alerts     *alert.Manager
	digests    *digest.Generator
	dispatcher alert.Dispatcher
	sinks      []Sink
	locker     lock.Locker
	publisher  AlertPublisher
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithSinks adds cycle sinks such as the NATS publisher or graph projector.
func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithLocker replaces the in-process alert lock, e.g. with a Redis lock
// shared between replicas.
func WithLocker(l lock.Locker) Option {
	return func(p *Pipeline) { p.locker = l }
}

// WithAlertPublisher publishes each delivered alert after it is recorded.
func WithAlertPublisher(pub AlertPublisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. The alert manager is wrapped with a ledger that
// serializes deliveries per dedup key and persists them to the store.
func New(
	runner *ingest.Runner,
	st store.Store,
	det *detector.Detector,
	alertCfg alert.Config,
	gen *digest.Generator,
	dispatcher alert.Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		runner:     runner,
		store:      st,
		detector:   det,
		digests:    gen,
		dispatcher: dispatcher,
		locker:     lock.NewKeyedMutex(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	l := &ledger{store: st, locker: p.locker, publisher: p.publisher, logger: logger}
	p.alerts = alert.NewManager(alertCfg, dispatcher, logger, alert.WithLedger(l), alert.WithClock(p.now))
	return p
}

// Store returns the backing store.
func (p *Pipeline) Store() store.Store {
	return p.store
}

// RunCycle runs every source, saves the snapshot, detects changes against the
// previous snapshot, notifies sinks and processes alerts. since is passed to
// the sources; zero lets each source use its own lookback.
//
// A cycle in which every source failed is saved as failed and skips detection,
// so the next successful cycle is compared against the last good snapshot.
func (p *Pipeline) RunCycle(ctx context.Context, since time.Time) (*CycleReport, error) {
	started := p.now()
	p.logger.Info("cycle starting", "sources", p.runner.Sources())

	res := p.runner.Run(ctx, since)
	cycle := models.Cycle{
		ID:          uuid.NewString(),
		StartedAt:   started,
		CompletedAt: p.now(),
		Status:      res.Status,
		EntityCount: len(res.Entities),
		Runs:        res.Runs,
	}
	if err := p.store.SaveCycle(ctx, cycle, res.Entities); err != nil {
		return nil, fmt.Errorf("saving cycle: %w", err)
	}
	metrics.CyclesTotal.WithLabelValues(string(cycle.Status)).Inc()
	report := &CycleReport{Cycle: cycle}

	if cycle.Status == models.StatusFailed {
		p.logger.Error("cycle failed", "cycle_id", cycle.ID, "runs", len(res.Runs))
		return report, fmt.Errorf("cycle %s: %w", cycle.ID, ErrAllSourcesFailed)
	}
	if cycle.Status == models.StatusPartial {
		p.logger.Warn("cycle partially succeeded", "cycle_id", cycle.ID)
	}

	changes, err := p.Detect(ctx)
	if err != nil {
		return report, err
	}
	report.Changes = changes

	for _, s := range p.sinks {
		if err := s.Emit(ctx, cycle, res.Entities, changes); err != nil {
			p.logger.Warn("sink failed", "sink", fmt.Sprintf("%T", s), "cycle_id", cycle.ID, "error", err)
		}
	}

	alerts, err := p.ProcessAlerts(ctx)
	report.Alerts = alerts
	if err != nil {
		return report, err
	}

	metrics.CycleDuration.Observe(p.now().Sub(started).Seconds())
	p.logger.Info("cycle complete",
		"cycle_id", cycle.ID,
		"status", cycle.Status,
		"entities", cycle.EntityCount,
		"changes", len(changes),
		"alerts", len(alerts),
	)
	return report, nil
}

// Detect compares the two most recent snapshots and persists the resulting
// change records. If changes were already recorded for the latest cycle they
// are returned instead of detecting again. With fewer than two snapshots there
// is nothing to compare and no changes are produced. Concurrent calls for the
// same cycle are serialized so its changes are recorded once.
func (p *Pipeline) Detect(ctx context.Context) ([]models.ChangeRecord, error) {
	ids, err := p.store.LatestCycleIDs(ctx, 2)
	if err != nil {
		return nil, fmt.Errorf("loading latest cycles: %w", err)
	}
	if len(ids) < 2 {
		p.logger.Info("no previous snapshot, skipping detection", "cycles", len(ids))
		return nil, nil
	}
	currentID, previousID := ids[0], ids[1]

	unlock, err := p.locker.Lock(ctx, "detect:"+currentID)
	if err != nil {
		return nil, fmt.Errorf("locking cycle %s for detection: %w", currentID, err)
	}
	defer unlock()

	existing, err := p.store.ListChanges(ctx, store.ChangeFilter{CycleID: currentID, Order: store.OrderScore})
	if err != nil {
		return nil, fmt.Errorf("checking existing changes: %w", err)
	}
	if len(existing) > 0 {
		p.logger.Info("changes already detected for cycle", "cycle_id", currentID, "changes", len(existing))
		return existing, nil
	}

	current, err := p.store.EntitiesForCycle(ctx, currentID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", currentID, err)
	}
	previous, err := p.store.EntitiesForCycle(ctx, previousID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", previousID, err)
	}

	changes := p.detector.Detect(current, previous)
	for i := range changes {
		changes[i].CycleID = currentID
		metrics.ChangesDetected.WithLabelValues(string(changes[i].ChangeType), string(changes[i].SignificanceLevel)).Inc()
	}
	if err := p.store.AppendChanges(ctx, changes); err != nil {
		return nil, fmt.Errorf("saving changes: %w", err)
	}
	p.logger.Info("changes detected", "cycle_id", currentID, "previous_cycle_id", previousID, "changes", len(changes))
	return changes, nil
}

// ProcessAlerts delivers every unsent change at or above the alert threshold.
// Changes whose delivery failed stay unsent and are retried on the next call.
func (p *Pipeline) ProcessAlerts(ctx context.Context) ([]models.Alert, error) {
	threshold := p.alerts.Config().Threshold
	pending, err := p.store.ListChanges(ctx, store.ChangeFilter{
		MinScore:   &threshold,
		UnsentOnly: true,
		Order:      store.OrderScore,
	})
	if err != nil {
		return nil, fmt.Errorf("loading unsent changes: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	history, err := p.store.ListAlertHistory(ctx, store.HistoryFilter{Limit: historyLimit})
	if err != nil {
		return nil, fmt.Errorf("loading alert history: %w", err)
	}
	return p.alerts.ProcessChanges(ctx, pending, history)
}

// BuildDigest assembles the digest for the window ending at now.
func (p *Pipeline) BuildDigest(ctx context.Context, now time.Time) (*digest.Digest, error) {
	since := now.Add(-p.digests.Window())
	changes, err := p.store.ListChanges(ctx, store.ChangeFilter{Since: &since, Order: store.OrderScore})
	if err != nil {
		return nil, fmt.Errorf("loading changes for digest: %w", err)
	}
	events, err := p.store.EntitiesSince(ctx, models.EntityTypeExternalEvent, since)
	if err != nil {
		return nil, fmt.Errorf("loading events for digest: %w", err)
	}
	d := p.digests.Build(now, changes, events)
	return &d, nil
}

// SendDigest builds the digest and dispatches it to the alert channel. With no
// channel configured the digest is built but not sent.
func (p *Pipeline) SendDigest(ctx context.Context, now time.Time) (*DigestDelivery, error) {
	d, err := p.BuildDigest(ctx, now)
	if err != nil {
		return nil, err
	}
	out := &DigestDelivery{Digest: *d, Channel: p.alerts.Config().Channel}
	if out.Channel == "" {
		p.logger.Warn("no alert channel configured, digest not sent")
		return out, nil
	}
	id, err := p.dispatcher.Send(ctx, out.Channel, d.Text)
	if err != nil {
		return out, fmt.Errorf("sending digest: %w", err)
	}
	out.Sent = true
	out.DeliveryID = id
	metrics.Inc(metrics.DigestsSent)
	p.logger.Info("digest sent", "channel", out.Channel, "words", d.WordCount, "changes", d.ChangesAnalyzed)
	return out, nil
}

// Announce posts a startup notice to the alert channel. Failures are logged
// and do not stop the caller.
func (p *Pipeline) Announce(ctx context.Context, version string) {
	cfg := p.alerts.Config()
	if cfg.Channel == "" {
		return
	}
	text := fmt.Sprintf("*OpenClaw Sentinel %s started*\nMonitoring %s. Alerts at score %d and above; sources: %v.",
		version, cfg.Account, cfg.Threshold, p.runner.Sources())
	if _, err := p.dispatcher.Send(ctx, cfg.Channel, text); err != nil {
		p.logger.Warn("startup notice failed", "channel", cfg.Channel, "error", err)
	}
}

// Status reports the latest cycle and store counts.
func (p *Pipeline) Status(ctx context.Context) (*Status, error) {
	stats, err := p.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	st := &Status{
		Account: p.alerts.Config().Account,
		Sources: p.runner.Sources(),
		Stats:   stats,
	}
	cycles, err := p.store.ListCycles(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("loading latest cycle: %w", err)
	}
	if len(cycles) > 0 {
		st.LastCycle = &cycles[0]
	}
	return st, nil
}
