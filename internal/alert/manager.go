// Package alert filters scored changes, suppresses duplicates, formats alerts
// and hands them to a notification dispatcher.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/openclaw-sentinel/internal/metrics"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// Dispatcher delivers a formatted message to a channel and returns a delivery id.
type Dispatcher interface {
	Send(ctx context.Context, channel, text string) (string, error)
}

// Ledger gives the caller a hook into delivery so that shared alert state can
// be guarded per dedup key. Lock is held across Seen, the dispatch and Record.
// A nil Ledger disables locking and persistence.
type Ledger interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
	// Seen reports whether an alert for c (by change id, or by dedup key since
	// the given time) was recorded after history was loaded.
	Seen(ctx context.Context, c *models.ChangeRecord, since time.Time) (bool, error)
	// Record persists a delivered alert. Errors are logged; the alert still
	// counts as sent.
	Record(ctx context.Context, a *models.Alert) error
	// Cover marks changeID as handled by a, an alert delivered in the same
	// pass for another change with the same dedup key.
	Cover(ctx context.Context, changeID string, a *models.Alert) error
}

// Config holds the alerting knobs.
type Config struct {
	Account     string
	Channel     string
	Threshold   int
	DedupWindow time.Duration
	// MaxPerDay caps deliveries within any trailing 24h, counting history. 0 disables the cap.
	MaxPerDay   int
	Concurrency int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:   models.CriticalThreshold,
		DedupWindow: 24 * time.Hour,
		MaxPerDay:   20,
		Concurrency: 4,
	}
}

// Suppression reasons reported in metrics and logs.
const (
	reasonBelowThreshold = "below_threshold"
	reasonDuplicateID    = "duplicate_change_id"
	reasonRecentKey      = "recent_alert"
	reasonBatchKey       = "batch_duplicate"
	reasonDailyCap       = "daily_cap"
)

// Manager turns change records into delivered alerts.
type Manager struct {
	cfg        Config
	dispatcher Dispatcher
	ledger     Ledger
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLedger installs per-key locking and persistence around each delivery.
func WithLedger(l Ledger) Option {
	return func(m *Manager) { m.ledger = l }
}

// WithClock overrides the time source used for dedup windows and alert timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an alert manager.
func NewManager(cfg Config, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Account == "" {
		cfg.Account = "Account"
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Select returns the changes that qualify for delivery: at or above the
// threshold, not already alerted by change id, no alert for the same
// (entity type, entity id, change type) within the dedup window, and within
// the daily cap. The result is ordered by score descending, ties by change id.
func (m *Manager) Select(changes []models.ChangeRecord, history []models.AlertHistoryRecord) []models.ChangeRecord {
	selected, _ := m.selectBatch(changes, history)
	return selected
}

// selectBatch is Select that also returns, per dedup key, the ids of changes
// dropped because a higher-ranked change with that key was selected.
func (m *Manager) selectBatch(changes []models.ChangeRecord, history []models.AlertHistoryRecord) ([]models.ChangeRecord, map[string][]string) {
	now := m.now()
	cutoff := now.Add(-m.cfg.DedupWindow)
	dayAgo := now.Add(-24 * time.Hour)

	sentIDs := make(map[string]struct{}, len(history))
	recentKeys := make(map[string]struct{})
	sentToday := 0
	for i := range history {
		h := &history[i]
		sentIDs[h.ChangeID] = struct{}{}
		if h.AlertTimestamp.After(cutoff) {
			recentKeys[h.DedupKey()] = struct{}{}
		}
		if h.AlertTimestamp.After(dayAgo) {
			sentToday++
		}
	}

	var candidates []models.ChangeRecord
	for i := range changes {
		c := changes[i]
		switch {
		case c.SignificanceScore < m.cfg.Threshold:
			m.suppress(&c, reasonBelowThreshold)
			continue
		case isIn(sentIDs, c.ChangeID):
			m.suppress(&c, reasonDuplicateID)
			continue
		case isIn(recentKeys, c.DedupKey()):
			m.suppress(&c, reasonRecentKey)
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].SignificanceScore != candidates[j].SignificanceScore {
			return candidates[i].SignificanceScore > candidates[j].SignificanceScore
		}
		return candidates[i].ChangeID < candidates[j].ChangeID
	})

	selected := candidates[:0]
	batchKeys := make(map[string]struct{}, len(candidates))
	covered := make(map[string][]string)
	for i := range candidates {
		c := candidates[i]
		if isIn(batchKeys, c.DedupKey()) {
			m.suppress(&c, reasonBatchKey)
			covered[c.DedupKey()] = append(covered[c.DedupKey()], c.ChangeID)
			continue
		}
		if m.cfg.MaxPerDay > 0 && sentToday+len(selected) >= m.cfg.MaxPerDay {
			m.suppress(&c, reasonDailyCap)
			continue
		}
		batchKeys[c.DedupKey()] = struct{}{}
		selected = append(selected, c)
	}
	return selected, covered
}

// Format builds the alert for a change without sending it.
func (m *Manager) Format(c *models.ChangeRecord) models.Alert {
	a := buildAlert(c, m.cfg.Channel, m.now())
	a.Text = Render(m.cfg.Account, &a)
	return a
}

// ProcessChanges selects, formats and dispatches alerts. Deliveries run
// concurrently; a failed delivery is logged and does not affect the others.
// The returned alerts are the ones actually delivered, ordered by score
// descending. Changes dropped as batch duplicates of a delivered alert are
// marked covered through the ledger so a later pass does not alert them.
// The error is non-nil only when ctx ends before dispatch completes.
func (m *Manager) ProcessChanges(ctx context.Context, changes []models.ChangeRecord, history []models.AlertHistoryRecord) ([]models.Alert, error) {
	selected, covered := m.selectBatch(changes, history)
	if len(selected) == 0 {
		m.logger.Debug("no alert candidates", "changes", len(changes))
		return nil, nil
	}

	results := make([]*models.Alert, len(selected))
	var g errgroup.Group
	g.SetLimit(m.cfg.Concurrency)
	var mu sync.Mutex
	failed := 0

	for i := range selected {
		c := &selected[i]
		idx := i
		g.Go(func() error {
			a, err := m.deliver(ctx, c)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				m.logger.Error("alert delivery failed", "change_id", c.ChangeID, "error", err)
				return nil
			}
			results[idx] = a
			if a != nil {
				m.cover(ctx, a, covered[c.DedupKey()])
			}
			return nil
		})
	}
	_ = g.Wait()

	sent := make([]models.Alert, 0, len(results))
	for _, a := range results {
		if a != nil {
			sent = append(sent, *a)
		}
	}
	m.logger.Info("alerts processed", "candidates", len(selected), "sent", len(sent), "failed", failed)

	if err := ctx.Err(); err != nil {
		return sent, fmt.Errorf("processing alerts: %w", err)
	}
	return sent, nil
}

// deliver sends one alert. A nil alert with a nil error means it was skipped.
func (m *Manager) deliver(ctx context.Context, c *models.ChangeRecord) (*models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.ledger != nil {
		unlock, err := m.ledger.Lock(ctx, c.DedupKey())
		if err != nil {
			return nil, fmt.Errorf("locking %s: %w", c.DedupKey(), err)
		}
		defer unlock()

		seen, err := m.ledger.Seen(ctx, c, m.now().Add(-m.cfg.DedupWindow))
		if err != nil {
			return nil, fmt.Errorf("checking alert history: %w", err)
		}
		if seen {
			m.suppress(c, reasonRecentKey)
			return nil, nil
		}
	}

	a := m.Format(c)
	deliveryID, err := m.dispatcher.Send(ctx, a.Channel, a.Text)
	if err != nil {
		metrics.Inc(metrics.AlertsFailed)
		return nil, fmt.Errorf("dispatching alert: %w", err)
	}
	a.DeliveryID = deliveryID
	metrics.Inc(metrics.AlertsSent)
	m.logger.Info("alert sent", "change_id", c.ChangeID, "channel", a.Channel, "score", c.SignificanceScore)

	if m.ledger != nil {
		if err := m.ledger.Record(ctx, &a); err != nil {
			m.logger.Error("recording alert", "change_id", c.ChangeID, "error", err)
		}
	}
	return &a, nil
}

func (m *Manager) cover(ctx context.Context, a *models.Alert, ids []string) {
	if m.ledger == nil {
		return
	}
	for _, id := range ids {
		if err := m.ledger.Cover(ctx, id, a); err != nil {
			m.logger.Error("marking batch duplicate covered", "change_id", id, "alert_change_id", a.ChangeID, "error", err)
		}
	}
}

func (m *Manager) suppress(c *models.ChangeRecord, reason string) {
	metrics.AlertsSuppressed.WithLabelValues(reason).Inc()
	if reason == reasonBelowThreshold {
		m.logger.Debug("change below threshold", "change_id", c.ChangeID,
			"score", c.SignificanceScore, "threshold", m.cfg.Threshold)
		return
	}
	m.logger.Info("alert suppressed", "change_id", c.ChangeID, "reason", reason)
}

func isIn(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
