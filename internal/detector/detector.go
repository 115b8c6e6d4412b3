// Package detector compares two entity snapshots and produces scored change records.
package detector

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/internal/scoring"
)

// VolatileFields are bookkeeping fields that change on every observation and
// never count as a material change.
var VolatileFields = []string{"last_seen", "last_updated", "source"}

// Detector computes the difference between two cycles' entity sets.
// Detect performs no I/O and is safe for concurrent use.
type Detector struct {
	scorer   *scoring.Scorer
	logger   *slog.Logger
	volatile map[string]struct{}
	now      func() time.Time
	newID    func() string
}

// Option customizes a Detector.
type Option func(*Detector)

// WithClock overrides the timestamp source used for change_timestamp.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithIDFunc overrides change_id generation.
func WithIDFunc(fn func() string) Option {
	return func(d *Detector) { d.newID = fn }
}

// WithVolatileFields replaces the set of fields ignored during comparison.
func WithVolatileFields(fields []string) Option {
	return func(d *Detector) {
		d.volatile = make(map[string]struct{}, len(fields))
		for _, f := range fields {
			d.volatile[f] = struct{}{}
		}
	}
}

// New creates a Detector that scores every record with scorer.
func New(scorer *scoring.Scorer, logger *slog.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		scorer: scorer,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	WithVolatileFields(VolatileFields)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect compares current against previous and returns one record per added
// entity, per removed entity, and per changed non-volatile field of entities
// present on both sides. Records are grouped added, removed, modified and
// sorted by entity key within each group; callers rank by score, not position.
func (d *Detector) Detect(current, previous []models.Entity) []models.ChangeRecord {
	ts := d.now()
	cur, curKeys := d.index(current, "current")
	prev, prevKeys := d.index(previous, "previous")

	var changes []models.ChangeRecord

	for _, key := range curKeys {
		if _, ok := prev[key]; ok {
			continue
		}
		changes = append(changes, d.record(ts, key, models.ChangeAdded, nil, cur[key].Clone(), ""))
	}

	for _, key := range prevKeys {
		if _, ok := cur[key]; ok {
			continue
		}
		changes = append(changes, d.record(ts, key, models.ChangeRemoved, prev[key].Clone(), nil, ""))
	}

	for _, key := range curKeys {
		before, ok := prev[key]
		if !ok {
			continue
		}
		for _, fc := range d.fieldChanges(before, cur[key]) {
			changes = append(changes, d.record(ts, key, models.ChangeModified,
				models.Fields{fc.field: fc.before},
				models.Fields{fc.field: fc.after},
				fc.field))
		}
	}

	d.logger.Info("detected changes",
		"current", len(cur), "previous", len(prev), "changes", len(changes))
	return changes
}

func (d *Detector) record(ts time.Time, key models.EntityKey, ct models.ChangeType, before, after models.Fields, field string) models.ChangeRecord {
	c := models.ChangeRecord{
		ChangeID:        d.newID(),
		EntityType:      key.Type,
		EntityID:        key.ID,
		ChangeType:      ct,
		PreviousValue:   before,
		NewValue:        after,
		FieldChanged:    field,
		ChangeTimestamp: ts,
	}
	a := d.scorer.Assess(&c)
	c.SignificanceScore = a.Score
	c.SignificanceLevel = a.Level
	c.Rationale = a.Rationale
	return c
}

// index maps entities by key with last-write-wins and returns the keys sorted.
// Entities without a type or id are dropped with a warning.
func (d *Detector) index(entities []models.Entity, side string) (map[models.EntityKey]models.Fields, []models.EntityKey) {
	m := make(map[models.EntityKey]models.Fields, len(entities))
	for i := range entities {
		e := entities[i]
		if err := e.Validate(); err != nil {
			d.logger.Warn("skipping malformed entity", "side", side, "error", err)
			continue
		}
		data := e.Data
		if data == nil {
			data = models.Fields{}
		}
		m[e.Key()] = data
	}
	keys := make([]models.EntityKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})
	return m, keys
}
