package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/openclaw-sentinel/internal/lock"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/internal/store"
)

// ledger backs alert.Ledger with the store and a per-key lock, so two
// deliveries for the same (entity type, entity id, change type) never race
// between the history check and the history write.
type ledger struct {
	store     store.Store
	locker    lock.Locker
	publisher AlertPublisher
	logger    *slog.Logger
}

func (l *ledger) Lock(ctx context.Context, key string) (func(), error) {
	return l.locker.Lock(ctx, "alert:"+key)
}

func (l *ledger) Seen(ctx context.Context, c *models.ChangeRecord, since time.Time) (bool, error) {
	byID, err := l.store.ListAlertHistory(ctx, store.HistoryFilter{ChangeID: c.ChangeID, Limit: 1})
	if err != nil {
		return false, err
	}
	if len(byID) > 0 {
		return true, nil
	}
	et, ct := c.EntityType, c.ChangeType
	byKey, err := l.store.ListAlertHistory(ctx, store.HistoryFilter{
		Since:      &since,
		EntityType: &et,
		EntityID:   c.EntityID,
		ChangeType: &ct,
		Limit:      1,
	})
	if err != nil {
		return false, err
	}
	return len(byKey) > 0, nil
}

func (l *ledger) Record(ctx context.Context, a *models.Alert) error {
	if err := l.store.MarkAlertSent(ctx, a.ChangeID, a.Timestamp); err != nil {
		return fmt.Errorf("marking change sent: %w", err)
	}
	rec := models.AlertHistoryRecord{
		ID:             uuid.NewString(),
		ChangeID:       a.ChangeID,
		EntityType:     a.EntityType,
		EntityID:       a.EntityID,
		ChangeType:     a.ChangeType,
		Channel:        a.Channel,
		MessageText:    a.Text,
		DeliveryID:     a.DeliveryID,
		AlertTimestamp: a.Timestamp,
	}
	if err := l.store.AppendAlertHistory(ctx, rec); err != nil {
		return fmt.Errorf("appending alert history: %w", err)
	}
	if l.publisher != nil {
		if err := l.publisher.PublishAlert(ctx, a); err != nil {
			l.logger.Warn("publishing alert", "change_id", a.ChangeID, "error", err)
		}
	}
	return nil
}

func (l *ledger) Cover(ctx context.Context, changeID string, a *models.Alert) error {
	if err := l.store.MarkAlertSent(ctx, changeID, a.Timestamp); err != nil {
		return fmt.Errorf("marking change %s covered by %s: %w", changeID, a.ChangeID, err)
	}
	return nil
}
