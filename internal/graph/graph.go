// Package graph projects entities and their change history into Neo4j so
// analysts can query how stakeholders, programs and risks evolve.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// Statement is one parameterized Cypher statement.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Writer runs statements in a single write transaction.
type Writer interface {
	Write(ctx context.Context, stmts []Statement) error
}

// Config configures the Neo4j connection.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
	// BatchSize bounds statements per transaction.
	BatchSize int
}

const (
	mergeCycle = `MERGE (c:Cycle {id: $id})
SET c.started_at = $started_at, c.status = $status, c.entity_count = $entity_count`

	mergeEntity = `MERGE (e:Entity {type: $type, id: $id})
SET e.data = $data, e.last_cycle = $cycle_id, e.present = true
WITH e
MATCH (c:Cycle {id: $cycle_id})
MERGE (e)-[:SEEN_IN]->(c)`

	createChange = `MERGE (e:Entity {type: $entity_type, id: $entity_id})
CREATE (ch:Change {
  id: $change_id, change_type: $change_type, field: $field,
  score: $score, level: $level, rationale: $rationale, at: $at
})-[:AFFECTS]->(e)
SET e.present = $present`
)

// Projector turns one cycle's observations into graph writes.
type Projector struct {
	w         Writer
	batchSize int
	logger    *slog.Logger
}

// NewProjector creates a projector over a writer.
func NewProjector(w Writer, batchSize int, logger *slog.Logger) *Projector {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Projector{w: w, batchSize: batchSize, logger: logger}
}

// Emit writes the cycle node, every observed entity and every change.
func (p *Projector) Emit(ctx context.Context, cycle models.Cycle, entities []models.Entity, changes []models.ChangeRecord) error {
	stmts, err := Statements(cycle, entities, changes)
	if err != nil {
		return err
	}
	for start := 0; start < len(stmts); start += p.batchSize {
		end := min(start+p.batchSize, len(stmts))
		if err := p.w.Write(ctx, stmts[start:end]); err != nil {
			return fmt.Errorf("writing graph batch %d-%d: %w", start, end, err)
		}
	}
	p.logger.Debug("graph projected", "cycle_id", cycle.ID, "statements", len(stmts))
	return nil
}

// Statements builds the Cypher for one cycle. Entity data is stored as a
// JSON string because Neo4j properties cannot hold nested maps.
func Statements(cycle models.Cycle, entities []models.Entity, changes []models.ChangeRecord) ([]Statement, error) {
	stmts := make([]Statement, 0, 1+len(entities)+len(changes))
	stmts = append(stmts, Statement{Cypher: mergeCycle, Params: map[string]any{
		"id":           cycle.ID,
		"started_at":   cycle.StartedAt.UTC().Format(time.RFC3339),
		"status":       string(cycle.Status),
		"entity_count": cycle.EntityCount,
	}})

	for i := range entities {
		e := &entities[i]
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding entity %s: %w", e.Key(), err)
		}
		stmts = append(stmts, Statement{Cypher: mergeEntity, Params: map[string]any{
			"type":     string(e.Type),
			"id":       e.ID,
			"data":     string(data),
			"cycle_id": cycle.ID,
		}})
	}

	for i := range changes {
		c := &changes[i]
		stmts = append(stmts, Statement{Cypher: createChange, Params: map[string]any{
			"entity_type": string(c.EntityType),
			"entity_id":   c.EntityID,
			"change_id":   c.ChangeID,
			"change_type": string(c.ChangeType),
			"field":       c.FieldChanged,
			"score":       c.SignificanceScore,
			"level":       string(c.SignificanceLevel),
			"rationale":   c.Rationale,
			"at":          c.ChangeTimestamp.UTC().Format(time.RFC3339),
			"present":     c.ChangeType != models.ChangeRemoved,
		}})
	}
	return stmts, nil
}

// Neo4jWriter is a Writer backed by the Neo4j driver.
type Neo4jWriter struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jWriter creates the driver and verifies connectivity.
func NewNeo4jWriter(ctx context.Context, cfg Config, logger *slog.Logger) (*Neo4jWriter, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}
	logger.Info("neo4j connected", "uri", cfg.URI, "database", cfg.Database)
	return &Neo4jWriter{driver: driver, database: cfg.Database}, nil
}

// Write implements Writer.
func (w *Neo4jWriter) Write(ctx context.Context, stmts []Statement) error {
	session := w.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: w.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range stmts {
			res, err := tx.Run(ctx, s.Cypher, s.Params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// EnsureConstraints creates the uniqueness constraints the MERGEs rely on.
func (w *Neo4jWriter) EnsureConstraints(ctx context.Context) error {
	return w.Write(ctx, []Statement{
		{Cypher: "CREATE CONSTRAINT entity_key IF NOT EXISTS FOR (e:Entity) REQUIRE (e.type, e.id) IS UNIQUE"},
		{Cypher: "CREATE CONSTRAINT change_id IF NOT EXISTS FOR (c:Change) REQUIRE c.id IS UNIQUE"},
		{Cypher: "CREATE CONSTRAINT cycle_id IF NOT EXISTS FOR (c:Cycle) REQUIRE c.id IS UNIQUE"},
	})
}

// Close closes the driver.
func (w *Neo4jWriter) Close(ctx context.Context) error {
	return w.driver.Close(ctx)
}
