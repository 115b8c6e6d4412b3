package models

import (
	"time"
)

// ChangeType is the kind of difference found between two cycles.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// IsValid returns true if the change type is recognized.
func (ct ChangeType) IsValid() bool {
	switch ct {
	case ChangeAdded, ChangeRemoved, ChangeModified:
		return true
	}
	return false
}

// SignificanceLevel buckets a significance score.
type SignificanceLevel string

const (
	LevelLow      SignificanceLevel = "LOW"
	LevelMedium   SignificanceLevel = "MEDIUM"
	LevelHigh     SignificanceLevel = "HIGH"
	LevelCritical SignificanceLevel = "CRITICAL"
)

// Level thresholds. A score at or above the threshold belongs to the level.
const (
	CriticalThreshold = 75
	HighThreshold     = 60
	MediumThreshold   = 40
)

// LevelForScore maps a score in [0,100] to its level.
func LevelForScore(score int) SignificanceLevel {
	switch {
	case score >= CriticalThreshold:
		return LevelCritical
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// IsValid returns true if the level is recognized.
func (l SignificanceLevel) IsValid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return true
	}
	return false
}

// ChangeRecord is one detected difference between two consecutive cycles.
// It is immutable after detection except for AlertSent and AlertTimestamp.
type ChangeRecord struct {
	ChangeID          string            `json:"change_id"`
	CycleID           string            `json:"cycle_id,omitempty"`
	EntityType        EntityType        `json:"entity_type"`
	EntityID          string            `json:"entity_id"`
	ChangeType        ChangeType        `json:"change_type"`
	PreviousValue     Fields            `json:"previous_value"`
	NewValue          Fields            `json:"new_value"`
	FieldChanged      string            `json:"field_changed,omitempty"`
	SignificanceScore int               `json:"significance_score"`
	SignificanceLevel SignificanceLevel `json:"significance_level"`
	Rationale         string            `json:"rationale"`
	ChangeTimestamp   time.Time         `json:"change_timestamp"`
	AlertSent         bool              `json:"alert_sent"`
	AlertTimestamp    *time.Time        `json:"alert_timestamp,omitempty"`
}

// Key returns the identity of the affected entity.
func (c ChangeRecord) Key() EntityKey {
	return EntityKey{Type: c.EntityType, ID: c.EntityID}
}

// DedupKey returns the (entity type, entity id, change type) triple used for
// alert deduplication and per-key locking.
func (c ChangeRecord) DedupKey() string {
	return string(c.EntityType) + "|" + c.EntityID + "|" + string(c.ChangeType)
}

// Subject returns the value payload that best describes the entity: the new
// value when present, otherwise the previous one.
func (c ChangeRecord) Subject() Fields {
	return FirstNonNil(c.NewValue, c.PreviousValue)
}
