package models

import (
	"fmt"
	"strings"
)

// EntityType classifies the kind of tracked entity.
type EntityType string

const (
	EntityTypeStakeholder   EntityType = "stakeholder"
	EntityTypeProgram       EntityType = "program"
	EntityTypeRisk          EntityType = "risk"
	EntityTypeTimeline      EntityType = "timeline"
	EntityTypeGovernance    EntityType = "governance"
	EntityTypeExternalEvent EntityType = "external_event"
)

// KnownEntityTypes is the set of entity types with dedicated scoring and formatting rules.
// Other types are accepted and fall back to generic handling.
var KnownEntityTypes = []EntityType{
	EntityTypeStakeholder,
	EntityTypeProgram,
	EntityTypeRisk,
	EntityTypeTimeline,
	EntityTypeGovernance,
	EntityTypeExternalEvent,
}

// IsKnown returns true if the entity type has dedicated handling.
func (et EntityType) IsKnown() bool {
	for i := range KnownEntityTypes {
		if et == KnownEntityTypes[i] {
			return true
		}
	}
	return false
}

// Label returns the type as a title-cased phrase, e.g. "External Event".
func (et EntityType) Label() string {
	words := strings.Split(string(et), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Fields is the open field map carried by an entity or a change payload.
type Fields map[string]any

// String returns the field as a string. Missing and nil values yield "".
// Non-string values are rendered with fmt.
func (f Fields) String(key string) string {
	if f == nil {
		return ""
	}
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// StringOr returns the field as a string, or def when it is empty.
func (f Fields) StringOr(key, def string) string {
	if s := f.String(key); s != "" {
		return s
	}
	return def
}

// Clone returns a shallow copy of the map. Nil stays nil.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// FirstNonNil returns the first non-nil field map, or nil.
func FirstNonNil(fields ...Fields) Fields {
	for _, f := range fields {
		if f != nil {
			return f
		}
	}
	return nil
}

// EntityKey identifies an entity across cycles.
type EntityKey struct {
	Type EntityType `json:"entity_type"`
	ID   string     `json:"entity_id"`
}

// String renders the key as "type/id".
func (k EntityKey) String() string {
	return string(k.Type) + "/" + k.ID
}

// Entity is one normalized observation of a tracked real-world thing.
type Entity struct {
	Type EntityType `json:"entity_type" yaml:"entity_type"`
	ID   string     `json:"entity_id" yaml:"entity_id"`
	Data Fields     `json:"data" yaml:"data"`
}

// Key returns the (type, id) identity of the entity.
func (e Entity) Key() EntityKey {
	return EntityKey{Type: e.Type, ID: e.ID}
}

// Validate reports whether the entity carries the identity needed for comparison.
func (e Entity) Validate() error {
	if strings.TrimSpace(string(e.Type)) == "" {
		return fmt.Errorf("entity %q: missing entity_type", e.ID)
	}
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("entity of type %q: missing entity_id", e.Type)
	}
	return nil
}
