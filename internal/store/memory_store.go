package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// MemoryStore is an in-memory implementation of Store. It backs tests and
// single-process deployments that do not need durable history.
type MemoryStore struct {
	mu      sync.RWMutex
	cycles  map[string]*storedCycle
	changes map[string]*models.ChangeRecord
	order   []string // change ids in append order
	history []models.AlertHistoryRecord
}

type storedCycle struct {
	cycle    models.Cycle
	entities []models.Entity
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cycles:  make(map[string]*storedCycle),
		changes: make(map[string]*models.ChangeRecord),
	}
}

// EnsureSchema is a no-op for the memory store.
func (m *MemoryStore) EnsureSchema(_ context.Context) error {
	return nil
}

// SaveCycle stores copies of the cycle and its entities.
func (m *MemoryStore) SaveCycle(_ context.Context, cycle models.Cycle, entities []models.Entity) error {
	if cycle.ID == "" {
		return fmt.Errorf("saving cycle: missing id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[cycle.ID] = &storedCycle{cycle: copyCycle(cycle), entities: copyEntities(entities)}
	return nil
}

// GetCycle retrieves one cycle by id.
func (m *MemoryStore) GetCycle(_ context.Context, id string) (*models.Cycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.cycles[id]
	if !ok {
		return nil, fmt.Errorf("cycle %s: %w", id, ErrNotFound)
	}
	c := copyCycle(sc.cycle)
	return &c, nil
}

// ListCycles returns cycles newest first.
func (m *MemoryStore) ListCycles(_ context.Context, limit int) ([]models.Cycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Cycle, 0, len(m.cycles))
	for _, sc := range m.sortedCyclesLocked() {
		out = append(out, copyCycle(sc.cycle))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// LatestCycleIDs returns the ids of the n most recent non-failed cycles.
func (m *MemoryStore) LatestCycleIDs(_ context.Context, n int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for _, sc := range m.sortedCyclesLocked() {
		if sc.cycle.Status == models.StatusFailed {
			continue
		}
		ids = append(ids, sc.cycle.ID)
		if len(ids) == n {
			break
		}
	}
	return ids, nil
}

// EntitiesForCycle returns a copy of a cycle's snapshot.
func (m *MemoryStore) EntitiesForCycle(_ context.Context, cycleID string) ([]models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.cycles[cycleID]
	if !ok {
		return nil, fmt.Errorf("cycle %s: %w", cycleID, ErrNotFound)
	}
	return copyEntities(sc.entities), nil
}

// EntitiesSince returns the latest observation of each entity of the given
// type from cycles started at or after since.
func (m *MemoryStore) EntitiesSince(_ context.Context, entityType models.EntityType, since time.Time) ([]models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[models.EntityKey]struct{})
	var out []models.Entity
	for _, sc := range m.sortedCyclesLocked() {
		if sc.cycle.StartedAt.Before(since) {
			continue
		}
		for i := len(sc.entities) - 1; i >= 0; i-- {
			e := sc.entities[i]
			if e.Type != entityType {
				continue
			}
			if _, dup := seen[e.Key()]; dup {
				continue
			}
			seen[e.Key()] = struct{}{}
			e.Data = e.Data.Clone()
			out = append(out, e)
		}
	}
	return out, nil
}

// AppendChanges stores copies of the change records.
func (m *MemoryStore) AppendChanges(_ context.Context, changes []models.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range changes {
		c := copyChange(changes[i])
		if c.ChangeID == "" {
			return fmt.Errorf("appending change: missing change_id")
		}
		if _, exists := m.changes[c.ChangeID]; !exists {
			m.order = append(m.order, c.ChangeID)
		}
		m.changes[c.ChangeID] = &c
	}
	return nil
}

// GetChange retrieves one change record by id.
func (m *MemoryStore) GetChange(_ context.Context, id string) (*models.ChangeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.changes[id]
	if !ok {
		return nil, fmt.Errorf("change %s: %w", id, ErrNotFound)
	}
	out := copyChange(*c)
	return &out, nil
}

// ListChanges returns change records matching the filter.
func (m *MemoryStore) ListChanges(_ context.Context, filter ChangeFilter) ([]models.ChangeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ChangeRecord
	for _, id := range m.order {
		c := m.changes[id]
		if matchesChange(c, filter) {
			out = append(out, copyChange(*c))
		}
	}
	sortChanges(out, filter.Order)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// MarkAlertSent flags a change as alerted.
func (m *MemoryStore) MarkAlertSent(_ context.Context, changeID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.changes[changeID]
	if !ok {
		return fmt.Errorf("change %s: %w", changeID, ErrNotFound)
	}
	ts := at
	c.AlertSent = true
	c.AlertTimestamp = &ts
	return nil
}

// AppendAlertHistory records a dispatched alert.
func (m *MemoryStore) AppendAlertHistory(_ context.Context, rec models.AlertHistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, rec)
	return nil
}

// ListAlertHistory returns alert history newest first.
func (m *MemoryStore) ListAlertHistory(_ context.Context, filter HistoryFilter) ([]models.AlertHistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AlertHistoryRecord
	for i := range m.history {
		if matchesHistory(&m.history[i], filter) {
			out = append(out, m.history[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AlertTimestamp.After(out[j].AlertTimestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Stats returns counts computed from the in-memory data.
func (m *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &Stats{
		Cycles:  int64(len(m.cycles)),
		Changes: int64(len(m.changes)),
		Alerts:  int64(len(m.history)),
		ByLevel: make(map[string]int64),
	}
	for _, sc := range m.sortedCyclesLocked() {
		if sc.cycle.Status != models.StatusFailed {
			stats.Entities = int64(sc.cycle.EntityCount)
			break
		}
	}
	for _, c := range m.changes {
		stats.ByLevel[string(c.SignificanceLevel)]++
		if !c.AlertSent && c.SignificanceScore >= models.CriticalThreshold {
			stats.UnsentCritical++
		}
	}
	return stats, nil
}

// Ping always succeeds for the memory store.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// --- helpers ---

func (m *MemoryStore) sortedCyclesLocked() []*storedCycle {
	out := make([]*storedCycle, 0, len(m.cycles))
	for _, sc := range m.cycles {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].cycle.StartedAt.Equal(out[j].cycle.StartedAt) {
			return out[i].cycle.StartedAt.After(out[j].cycle.StartedAt)
		}
		return out[i].cycle.ID > out[j].cycle.ID
	})
	return out
}

func sortChanges(changes []models.ChangeRecord, order Order) {
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := &changes[i], &changes[j]
		if order != OrderRecent && a.SignificanceScore != b.SignificanceScore {
			return a.SignificanceScore > b.SignificanceScore
		}
		if !a.ChangeTimestamp.Equal(b.ChangeTimestamp) {
			return a.ChangeTimestamp.After(b.ChangeTimestamp)
		}
		return a.ChangeID < b.ChangeID
	})
}

func copyCycle(c models.Cycle) models.Cycle {
	if c.Runs != nil {
		runs := make([]models.SourceRun, len(c.Runs))
		copy(runs, c.Runs)
		c.Runs = runs
	}
	return c
}

func copyEntities(entities []models.Entity) []models.Entity {
	out := make([]models.Entity, len(entities))
	for i, e := range entities {
		e.Data = e.Data.Clone()
		out[i] = e
	}
	return out
}

func copyChange(c models.ChangeRecord) models.ChangeRecord {
	c.PreviousValue = c.PreviousValue.Clone()
	c.NewValue = c.NewValue.Clone()
	if c.AlertTimestamp != nil {
		ts := *c.AlertTimestamp
		c.AlertTimestamp = &ts
	}
	return c
}
