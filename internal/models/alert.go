package models

import "time"

// Alert is a formatted notification produced for one change record.
type Alert struct {
	ChangeID        string            `json:"change_id"`
	EntityType      EntityType        `json:"entity_type"`
	EntityID        string            `json:"entity_id"`
	ChangeType      ChangeType        `json:"change_type"`
	Level           SignificanceLevel `json:"level"`
	Score           int               `json:"score"`
	Summary         string            `json:"summary"`
	Rationale       string            `json:"rationale"`
	AffectedContext []string          `json:"affected_context"`
	SourceLinks     []string          `json:"source_links"`
	Timestamp       time.Time         `json:"timestamp"`
	Channel         string            `json:"channel"`
	Text            string            `json:"text"`
	DeliveryID      string            `json:"delivery_id,omitempty"`
}

// DedupKey mirrors ChangeRecord.DedupKey for the alerted change.
func (a Alert) DedupKey() string {
	return string(a.EntityType) + "|" + a.EntityID + "|" + string(a.ChangeType)
}

// AlertHistoryRecord is the write-once audit entry created when an alert is dispatched.
type AlertHistoryRecord struct {
	ID             string     `json:"id"`
	ChangeID       string     `json:"change_id"`
	EntityType     EntityType `json:"entity_type"`
	EntityID       string     `json:"entity_id"`
	ChangeType     ChangeType `json:"change_type"`
	Channel        string     `json:"channel"`
	MessageText    string     `json:"message_text"`
	DeliveryID     string     `json:"delivery_id,omitempty"`
	AlertTimestamp time.Time  `json:"alert_timestamp"`
}

// DedupKey mirrors ChangeRecord.DedupKey for the recorded alert.
func (h AlertHistoryRecord) DedupKey() string {
	return string(h.EntityType) + "|" + h.EntityID + "|" + string(h.ChangeType)
}
