// Package publish fans detected changes, delivered alerts and cycle summaries
// out to NATS subscribers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// Config configures a Publisher.
type Config struct {
	URL string
	// Subject is the subject prefix, e.g. "sentinel.acme".
	Subject string
	Name    string
}

// Publisher emits JSON events on
//
//	<prefix>.cycle                 one per completed cycle
//	<prefix>.change.<level>        one per change record, level lower-cased
//	<prefix>.alert                 one per delivered alert
//
// Each message carries a Nats-Msg-Id header so JetStream streams can
// deduplicate redeliveries.
type Publisher struct {
	conn   Conn
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials NATS with unlimited reconnects.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	name := cfg.Name
	if name == "" {
		name = "openclaw-sentinel"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(10*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	p := New(nc, cfg.Subject, logger)
	p.nc = nc
	return p, nil
}

// New wraps an existing connection.
func New(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = "sentinel"
	}
	return &Publisher{conn: conn, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// CycleEvent is the payload published for a completed cycle.
type CycleEvent struct {
	Cycle    models.Cycle `json:"cycle"`
	Entities int          `json:"entities"`
	Changes  int          `json:"changes"`
}

// Emit publishes the cycle summary and every change, then flushes.
func (p *Publisher) Emit(ctx context.Context, cycle models.Cycle, entities []models.Entity, changes []models.ChangeRecord) error {
	if err := p.publish(p.prefix+".cycle", cycle.ID, CycleEvent{
		Cycle:    cycle,
		Entities: len(entities),
		Changes:  len(changes),
	}); err != nil {
		return err
	}
	for i := range changes {
		c := &changes[i]
		subject := p.prefix + ".change." + strings.ToLower(string(c.SignificanceLevel))
		if err := p.publish(subject, c.ChangeID, c); err != nil {
			return err
		}
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing nats: %w", err)
	}
	p.logger.Debug("published cycle", "cycle_id", cycle.ID, "changes", len(changes))
	return nil
}

// PublishAlert publishes one delivered alert.
func (p *Publisher) PublishAlert(ctx context.Context, a *models.Alert) error {
	if err := p.publish(p.prefix+".alert", a.ChangeID, a); err != nil {
		return err
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing nats: %w", err)
	}
	return nil
}

func (p *Publisher) publish(subject, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", subject, err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, id)
	msg.Header.Set("Content-Type", "application/json")
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection when the publisher owns it.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
