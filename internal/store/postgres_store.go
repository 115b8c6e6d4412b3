package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// PostgresConfig holds connection pool settings.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PostgresStore implements Store on PostgreSQL via pgx.
type PostgresStore struct {
	pool   *pgxpool.Pool
	dsn    string
	logger *slog.Logger
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool, dsn: cfg.DSN, logger: logger}, nil
}

// EnsureSchema applies pending migrations.
func (s *PostgresStore) EnsureSchema(_ context.Context) error {
	return RunMigrations(s.dsn, MigrateUp, s.logger)
}

// withTx executes fn within a transaction, rolling back on error.
func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveCycle upserts the cycle row and replaces its snapshot.
func (s *PostgresStore) SaveCycle(ctx context.Context, cycle models.Cycle, entities []models.Entity) error {
	if cycle.ID == "" {
		return fmt.Errorf("saving cycle: missing id")
	}
	runs, err := json.Marshal(cycle.Runs)
	if err != nil {
		return fmt.Errorf("failed to encode cycle runs: %w", err)
	}

	// Last write wins for duplicate keys; position keeps the adapter's order.
	index := make(map[models.EntityKey]int, len(entities))
	var rows [][]any
	for i := range entities {
		e := entities[i]
		data, err := json.Marshal(orEmpty(e.Data))
		if err != nil {
			return fmt.Errorf("failed to encode entity %s: %w", e.Key(), err)
		}
		row := []any{cycle.ID, string(e.Type), e.ID, data, i}
		if at, ok := index[e.Key()]; ok {
			rows[at] = row
			continue
		}
		index[e.Key()] = len(rows)
		rows = append(rows, row)
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO cycles (id, started_at, completed_at, status, entity_count, runs)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			   started_at = EXCLUDED.started_at,
			   completed_at = EXCLUDED.completed_at,
			   status = EXCLUDED.status,
			   entity_count = EXCLUDED.entity_count,
			   runs = EXCLUDED.runs`,
			cycle.ID, cycle.StartedAt, nullTime(cycle.CompletedAt), string(cycle.Status), cycle.EntityCount, runs,
		)
		if err != nil {
			return fmt.Errorf("failed to save cycle: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM entity_snapshots WHERE cycle_id = $1`, cycle.ID); err != nil {
			return fmt.Errorf("failed to clear snapshot: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"entity_snapshots"},
			[]string{"cycle_id", "entity_type", "entity_id", "data", "position"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		return nil
	})
}

const cycleColumns = `id, started_at, completed_at, status, entity_count, runs`

func scanCycle(row pgx.Row) (*models.Cycle, error) {
	var (
		c         models.Cycle
		completed *time.Time
		status    string
		runs      []byte
	)
	if err := row.Scan(&c.ID, &c.StartedAt, &completed, &status, &c.EntityCount, &runs); err != nil {
		return nil, err
	}
	c.Status = models.RunStatus(status)
	if completed != nil {
		c.CompletedAt = *completed
	}
	if len(runs) > 0 {
		if err := json.Unmarshal(runs, &c.Runs); err != nil {
			return nil, fmt.Errorf("failed to decode cycle runs: %w", err)
		}
	}
	return &c, nil
}

// GetCycle retrieves one cycle by id.
func (s *PostgresStore) GetCycle(ctx context.Context, id string) (*models.Cycle, error) {
	c, err := scanCycle(s.pool.QueryRow(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cycle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	return c, nil
}

// ListCycles returns cycles newest first.
func (s *PostgresStore) ListCycles(ctx context.Context, limit int) ([]models.Cycle, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+cycleColumns+` FROM cycles ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var out []models.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// LatestCycleIDs returns the ids of the n most recent non-failed cycles.
func (s *PostgresStore) LatestCycleIDs(ctx context.Context, n int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM cycles WHERE status <> $1 ORDER BY started_at DESC, id DESC LIMIT $2`,
		string(models.StatusFailed), n)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest cycles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cycle id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EntitiesForCycle returns the snapshot of a cycle in adapter order.
func (s *PostgresStore) EntitiesForCycle(ctx context.Context, cycleID string) ([]models.Entity, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cycles WHERE id = $1)`, cycleID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up cycle: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("cycle %s: %w", cycleID, ErrNotFound)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT entity_type, entity_id, data FROM entity_snapshots WHERE cycle_id = $1 ORDER BY position`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// EntitiesSince returns the latest observation of each entity of the given
// type from cycles started at or after since.
func (s *PostgresStore) EntitiesSince(ctx context.Context, entityType models.EntityType, since time.Time) ([]models.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entity_type, entity_id, data FROM (
		   SELECT DISTINCT ON (s.entity_id) s.entity_type, s.entity_id, s.data, c.started_at, s.position
		   FROM entity_snapshots s JOIN cycles c ON c.id = s.cycle_id
		   WHERE s.entity_type = $1 AND c.started_at >= $2
		   ORDER BY s.entity_id, c.started_at DESC
		 ) latest
		 ORDER BY started_at DESC, position DESC`,
		string(entityType), since)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

func scanEntities(rows pgx.Rows) ([]models.Entity, error) {
	var out []models.Entity
	for rows.Next() {
		var (
			e    models.Entity
			et   string
			data []byte
		)
		if err := rows.Scan(&et, &e.ID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		e.Type = models.EntityType(et)
		fields, err := decodeFields(data)
		if err != nil {
			return nil, fmt.Errorf("entity %s/%s: %w", et, e.ID, err)
		}
		e.Data = fields
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendChanges inserts change records, ignoring ids already stored and
// records repeating a (cycle, entity, change type, field) already detected.
func (s *PostgresStore) AppendChanges(ctx context.Context, changes []models.ChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range changes {
		c := &changes[i]
		prev, err := encodeFields(c.PreviousValue)
		if err != nil {
			return fmt.Errorf("change %s: %w", c.ChangeID, err)
		}
		next, err := encodeFields(c.NewValue)
		if err != nil {
			return fmt.Errorf("change %s: %w", c.ChangeID, err)
		}
		batch.Queue(
			`INSERT INTO detected_changes (change_id, cycle_id, entity_type, entity_id, change_type,
			   previous_value, new_value, field_changed, significance_score, significance_level,
			   rationale, change_timestamp, alert_sent, alert_timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT DO NOTHING`,
			c.ChangeID, nullString(c.CycleID), string(c.EntityType), c.EntityID, string(c.ChangeType),
			prev, next, nullString(c.FieldChanged), c.SignificanceScore, string(c.SignificanceLevel),
			c.Rationale, c.ChangeTimestamp, c.AlertSent, c.AlertTimestamp,
		)
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range changes {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("failed to append change: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to append changes: %w", err)
		}
		return nil
	})
}

const changeColumns = `change_id, cycle_id, entity_type, entity_id, change_type, previous_value, new_value,
	field_changed, significance_score, significance_level, rationale, change_timestamp, alert_sent, alert_timestamp`

func scanChange(row pgx.Row) (*models.ChangeRecord, error) {
	var (
		c              models.ChangeRecord
		cycleID, field *string
		et, ct, level  string
		prev, next     []byte
	)
	err := row.Scan(&c.ChangeID, &cycleID, &et, &c.EntityID, &ct, &prev, &next,
		&field, &c.SignificanceScore, &level, &c.Rationale, &c.ChangeTimestamp, &c.AlertSent, &c.AlertTimestamp)
	if err != nil {
		return nil, err
	}
	c.EntityType = models.EntityType(et)
	c.ChangeType = models.ChangeType(ct)
	c.SignificanceLevel = models.SignificanceLevel(level)
	if cycleID != nil {
		c.CycleID = *cycleID
	}
	if field != nil {
		c.FieldChanged = *field
	}
	if c.PreviousValue, err = decodeFields(prev); err != nil {
		return nil, err
	}
	if c.NewValue, err = decodeFields(next); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChange retrieves one change record by id.
func (s *PostgresStore) GetChange(ctx context.Context, id string) (*models.ChangeRecord, error) {
	c, err := scanChange(s.pool.QueryRow(ctx, `SELECT `+changeColumns+` FROM detected_changes WHERE change_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("change %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get change: %w", err)
	}
	return c, nil
}

// ListChanges returns change records matching the filter.
func (s *PostgresStore) ListChanges(ctx context.Context, f ChangeFilter) ([]models.ChangeRecord, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Since != nil {
		where = append(where, "change_timestamp >= "+arg(*f.Since))
	}
	if f.MinScore != nil {
		where = append(where, "significance_score >= "+arg(*f.MinScore))
	}
	if f.UnsentOnly {
		where = append(where, "alert_sent = FALSE")
	}
	if f.EntityType != nil {
		where = append(where, "entity_type = "+arg(string(*f.EntityType)))
	}
	if f.CycleID != "" {
		where = append(where, "cycle_id = "+arg(f.CycleID))
	}

	q := `SELECT ` + changeColumns + ` FROM detected_changes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Order == OrderRecent {
		q += " ORDER BY change_timestamp DESC, change_id"
	} else {
		q += " ORDER BY significance_score DESC, change_timestamp DESC, change_id"
	}
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	var out []models.ChangeRecord
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// MarkAlertSent flags a change as alerted.
func (s *PostgresStore) MarkAlertSent(ctx context.Context, changeID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE detected_changes SET alert_sent = TRUE, alert_timestamp = $2 WHERE change_id = $1`, changeID, at)
	if err != nil {
		return fmt.Errorf("failed to mark alert sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("change %s: %w", changeID, ErrNotFound)
	}
	return nil
}

// AppendAlertHistory records a dispatched alert.
func (s *PostgresStore) AppendAlertHistory(ctx context.Context, rec models.AlertHistoryRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_history (id, change_id, entity_type, entity_id, change_type, channel, message_text, delivery_id, alert_timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.ChangeID, string(rec.EntityType), rec.EntityID, string(rec.ChangeType),
		rec.Channel, rec.MessageText, rec.DeliveryID, rec.AlertTimestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record alert history: %w", err)
	}
	return nil
}

// ListAlertHistory returns alert history newest first.
func (s *PostgresStore) ListAlertHistory(ctx context.Context, f HistoryFilter) ([]models.AlertHistoryRecord, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Since != nil {
		where = append(where, "alert_timestamp >= "+arg(*f.Since))
	}
	if f.ChangeID != "" {
		where = append(where, "change_id = "+arg(f.ChangeID))
	}
	if f.EntityType != nil {
		where = append(where, "entity_type = "+arg(string(*f.EntityType)))
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = "+arg(f.EntityID))
	}
	if f.ChangeType != nil {
		where = append(where, "change_type = "+arg(string(*f.ChangeType)))
	}

	q := `SELECT id, change_id, entity_type, entity_id, change_type, channel, message_text, delivery_id, alert_timestamp
	      FROM alert_history`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY alert_timestamp DESC"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	defer rows.Close()

	var out []models.AlertHistoryRecord
	for rows.Next() {
		var (
			h      models.AlertHistoryRecord
			et, ct string
		)
		if err := rows.Scan(&h.ID, &h.ChangeID, &et, &h.EntityID, &ct, &h.Channel, &h.MessageText, &h.DeliveryID, &h.AlertTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert history: %w", err)
		}
		h.EntityType = models.EntityType(et)
		h.ChangeType = models.ChangeType(ct)
		out = append(out, h)
	}
	return out, rows.Err()
}

// Stats returns table counts.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByLevel: make(map[string]int64)}
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM cycles),
		   (SELECT COALESCE((SELECT entity_count FROM cycles WHERE status <> $1 ORDER BY started_at DESC LIMIT 1), 0)),
		   (SELECT COUNT(*) FROM detected_changes),
		   (SELECT COUNT(*) FROM detected_changes WHERE alert_sent = FALSE AND significance_score >= $2),
		   (SELECT COUNT(*) FROM alert_history)`,
		string(models.StatusFailed), models.CriticalThreshold,
	).Scan(&stats.Cycles, &stats.Entities, &stats.Changes, &stats.UnsentCritical, &stats.Alerts)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT significance_level, COUNT(*) FROM detected_changes GROUP BY significance_level`)
	if err != nil {
		return nil, fmt.Errorf("failed to read level counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			level string
			n     int64
		)
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		stats.ByLevel[level] = n
	}
	return stats, rows.Err()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- helpers ---

func orEmpty(f models.Fields) models.Fields {
	if f == nil {
		return models.Fields{}
	}
	return f
}

func encodeFields(f models.Fields) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return b, nil
}

func decodeFields(b []byte) (models.Fields, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var f models.Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return f, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
