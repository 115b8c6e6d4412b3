package store

import (
	"context"
	"errors"
	"time"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// ErrNotFound is returned when the requested cycle or change does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence surface for cycles, entity snapshots, change
// records and alert history.
type Store interface {
	// EnsureSchema creates or migrates the backing schema.
	EnsureSchema(ctx context.Context) error

	// SaveCycle records a completed cycle together with the full set of
	// entities it observed. Saving an existing cycle id replaces it.
	SaveCycle(ctx context.Context, cycle models.Cycle, entities []models.Entity) error

	// GetCycle retrieves one cycle by id.
	GetCycle(ctx context.Context, id string) (*models.Cycle, error)

	// ListCycles returns cycles newest first.
	ListCycles(ctx context.Context, limit int) ([]models.Cycle, error)

	// LatestCycleIDs returns the ids of the n most recent cycles that produced
	// a snapshot (status other than failed), newest first.
	LatestCycleIDs(ctx context.Context, n int) ([]string, error)

	// EntitiesForCycle returns the entity snapshot of a cycle.
	EntitiesForCycle(ctx context.Context, cycleID string) ([]models.Entity, error)

	// EntitiesSince returns entities of the given type observed in cycles
	// started at or after since, one per key (latest observation), most
	// recently observed first.
	EntitiesSince(ctx context.Context, entityType models.EntityType, since time.Time) ([]models.Entity, error)

	// AppendChanges persists newly detected change records.
	AppendChanges(ctx context.Context, changes []models.ChangeRecord) error

	// GetChange retrieves one change record by id.
	GetChange(ctx context.Context, id string) (*models.ChangeRecord, error)

	// ListChanges returns change records matching the filter.
	ListChanges(ctx context.Context, filter ChangeFilter) ([]models.ChangeRecord, error)

	// MarkAlertSent sets alert_sent and alert_timestamp on a change record.
	MarkAlertSent(ctx context.Context, changeID string, at time.Time) error

	// AppendAlertHistory records a dispatched alert.
	AppendAlertHistory(ctx context.Context, rec models.AlertHistoryRecord) error

	// ListAlertHistory returns alert history newest first.
	ListAlertHistory(ctx context.Context, filter HistoryFilter) ([]models.AlertHistoryRecord, error)

	// Stats returns row counts.
	Stats(ctx context.Context) (*Stats, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}

// Order selects the sort order of ListChanges.
type Order string

const (
	// OrderScore sorts by significance score descending, newest first on ties.
	OrderScore Order = "score"
	// OrderRecent sorts by change timestamp descending.
	OrderRecent Order = "recent"
)

// ChangeFilter narrows ListChanges. Zero values do not filter.
type ChangeFilter struct {
	Since      *time.Time         `json:"since,omitempty"`
	MinScore   *int               `json:"min_score,omitempty"`
	UnsentOnly bool               `json:"unsent_only,omitempty"`
	EntityType *models.EntityType `json:"entity_type,omitempty"`
	CycleID    string             `json:"cycle_id,omitempty"`
	Order      Order              `json:"order,omitempty"`
	Limit      int                `json:"limit,omitempty"`
}

// HistoryFilter narrows ListAlertHistory. Zero values do not filter.
type HistoryFilter struct {
	Since      *time.Time         `json:"since,omitempty"`
	ChangeID   string             `json:"change_id,omitempty"`
	EntityType *models.EntityType `json:"entity_type,omitempty"`
	EntityID   string             `json:"entity_id,omitempty"`
	ChangeType *models.ChangeType `json:"change_type,omitempty"`
	Limit      int                `json:"limit,omitempty"`
}

// Stats summarizes stored data.
type Stats struct {
	Cycles         int64            `json:"cycles"`
	Entities       int64            `json:"entities"`
	Changes        int64            `json:"changes"`
	UnsentCritical int64            `json:"unsent_critical"`
	Alerts         int64            `json:"alerts"`
	ByLevel        map[string]int64 `json:"by_level"`
}

func matchesChange(c *models.ChangeRecord, f ChangeFilter) bool {
	if f.Since != nil && c.ChangeTimestamp.Before(*f.Since) {
		return false
	}
	if f.MinScore != nil && c.SignificanceScore < *f.MinScore {
		return false
	}
	if f.UnsentOnly && c.AlertSent {
		return false
	}
	if f.EntityType != nil && c.EntityType != *f.EntityType {
		return false
	}
	if f.CycleID != "" && c.CycleID != f.CycleID {
		return false
	}
	return true
}

func matchesHistory(h *models.AlertHistoryRecord, f HistoryFilter) bool {
	if f.Since != nil && h.AlertTimestamp.Before(*f.Since) {
		return false
	}
	if f.ChangeID != "" && h.ChangeID != f.ChangeID {
		return false
	}
	if f.EntityType != nil && h.EntityType != *f.EntityType {
		return false
	}
	if f.EntityID != "" && h.EntityID != f.EntityID {
		return false
	}
	if f.ChangeType != nil && h.ChangeType != *f.ChangeType {
		return false
	}
	return true
}
