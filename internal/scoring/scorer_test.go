package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

func newTestScorer() *Scorer {
	return NewScorer(DefaultTables(), "Acme")
}

func TestScore_StakeholderRoleTiers(t *testing.T) {
	s := newTestScorer()
	cases := []struct {
		role string
		want int
	}{
		{"CEO", 30 + 15 + 40},
		{"Board Member", 30 + 15 + 35},
		{"AI Program Lead", 30 + 15 + 20},
		{"Engineer", 30 + 15},
		{"ceo", 30 + 15}, // matching is exact
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			c := &models.ChangeRecord{
				EntityType: models.EntityTypeStakeholder,
				ChangeType: models.ChangeAdded,
				NewValue:   models.Fields{"name": "X", "role": tc.role},
			}
			assert.Equal(t, tc.want, s.Score(c))
		})
	}
}

func TestScore_StakeholderRemovedUsesPreviousRole(t *testing.T) {
	s := newTestScorer()
	c := &models.ChangeRecord{
		EntityType:    models.EntityTypeStakeholder,
		ChangeType:    models.ChangeRemoved,
		PreviousValue: models.Fields{"name": "X", "role": "CFO"},
	}
	assert.Equal(t, 90, s.Score(c))
	c.PreviousValue["role"] = "Board Chairman"
	assert.Equal(t, 85, s.Score(c))
}

func TestScore_CEOAddedIsCritical(t *testing.T) {
	s := newTestScorer()
	c := &models.ChangeRecord{
		EntityType: models.EntityTypeStakeholder,
		ChangeType: models.ChangeAdded,
		NewValue:   models.Fields{"name": "A", "role": "CEO"},
	}
	a := s.Assess(c)
	assert.Equal(t, 85, a.Score)
	assert.Equal(t, models.LevelCritical, a.Level)
}

func TestScore_RoleModifiedEngineerIsMedium(t *testing.T) {
	s := newTestScorer()
	c := &models.ChangeRecord{
		EntityType:    models.EntityTypeStakeholder,
		ChangeType:    models.ChangeModified,
		FieldChanged:  "role",
		PreviousValue: models.Fields{"role": "Intern"},
		NewValue:      models.Fields{"role": "Engineer"},
	}
	a := s.Assess(c)
	assert.Equal(t, 40, a.Score)
	assert.Equal(t, models.LevelMedium, a.Level)
}

func TestScore_ProgramStatus(t *testing.T) {
	s := newTestScorer()
	blocked := &models.ChangeRecord{
		EntityType:   models.EntityTypeProgram,
		ChangeType:   models.ChangeModified,
		FieldChanged: "status",
		NewValue:     models.Fields{"status": "Blocked"},
	}
	assert.Equal(t, 25+10+30, s.Score(blocked))

	otherField := &models.ChangeRecord{
		EntityType:   models.EntityTypeProgram,
		ChangeType:   models.ChangeModified,
		FieldChanged: "owner",
		NewValue:     models.Fields{"owner": "Blocked"},
	}
	assert.Equal(t, 35, s.Score(otherField))

	// status present on an added program earns no status bonus
	added := &models.ChangeRecord{
		EntityType: models.EntityTypeProgram,
		ChangeType: models.ChangeAdded,
		NewValue:   models.Fields{"status": "At Risk"},
	}
	assert.Equal(t, 40, s.Score(added))
}

func TestScore_RiskSeverity(t *testing.T) {
	s := newTestScorer()
	c := &models.ChangeRecord{
		EntityType: models.EntityTypeRisk,
		ChangeType: models.ChangeAdded,
		NewValue:   models.Fields{"severity": "Critical"},
	}
	assert.Equal(t, 90, s.Score(c))
	c.NewValue["severity"] = "High"
	assert.Equal(t, 75, s.Score(c))
	c.NewValue["severity"] = "Low"
	assert.Equal(t, 50, s.Score(c))
}

func TestScore_ExternalEventCategories(t *testing.T) {
	s := newTestScorer()
	cases := map[string]int{
		"M&A":               95,
		"Executive Change":  95,
		"SEC Filing (8-K)":  90,
		"Regulatory Action": 90,
		"SEC Filing (10-Q)": 70,
		"News Article":      55,
	}
	for eventType, want := range cases {
		c := &models.ChangeRecord{
			EntityType: models.EntityTypeExternalEvent,
			ChangeType: models.ChangeAdded,
			NewValue:   models.Fields{"event_type": eventType},
		}
		assert.Equal(t, want, s.Score(c), eventType)
	}
}

func TestScore_UnknownTypeUsesDefaultBase(t *testing.T) {
	s := newTestScorer()
	c := &models.ChangeRecord{EntityType: "vendor", ChangeType: models.ChangeModified}
	assert.Equal(t, 20, s.Score(c))
}

func TestScore_ClampedToRange(t *testing.T) {
	tables := DefaultTables()
	tables.DefaultBase = -50
	s := NewScorer(tables, "Acme")
	assert.Equal(t, 0, s.Score(&models.ChangeRecord{EntityType: "vendor", ChangeType: models.ChangeAdded}))

	tables = DefaultTables()
	tables.BaseScores["risk"] = 200
	s = NewScorer(tables, "Acme")
	assert.Equal(t, 100, s.Score(&models.ChangeRecord{EntityType: models.EntityTypeRisk, ChangeType: models.ChangeAdded}))
}

func TestScore_CustomTablesOverrideDefaults(t *testing.T) {
	tables := DefaultTables()
	tables.ChangeTypeScores["added"] = 0
	tables.StakeholderRoles = []Tier{{Values: []string{"COO"}, Bonus: 50}}
	s := NewScorer(tables, "Acme")
	c := &models.ChangeRecord{
		EntityType: models.EntityTypeStakeholder,
		ChangeType: models.ChangeAdded,
		NewValue:   models.Fields{"role": "COO"},
	}
	assert.Equal(t, 80, s.Score(c))
	c.NewValue["role"] = "CEO"
	assert.Equal(t, 30, s.Score(c))
}

func TestRationale_Templates(t *testing.T) {
	cases := []struct {
		name   string
		change models.ChangeRecord
		want   string
	}{
		{
			name: "stakeholder added",
			change: models.ChangeRecord{EntityType: models.EntityTypeStakeholder, ChangeType: models.ChangeAdded,
				NewValue: models.Fields{"name": "Ada", "role": "CEO"}},
			want: "CEO Ada added to Acme organization.",
		},
		{
			name: "stakeholder removed",
			change: models.ChangeRecord{EntityType: models.EntityTypeStakeholder, ChangeType: models.ChangeRemoved,
				PreviousValue: models.Fields{"name": "Ada", "role": "CFO"}},
			want: "CFO Ada removed from Acme organization.",
		},
		{
			name: "stakeholder role",
			change: models.ChangeRecord{EntityType: models.EntityTypeStakeholder, ChangeType: models.ChangeModified, FieldChanged: "role",
				PreviousValue: models.Fields{"role": "Intern"}, NewValue: models.Fields{"role": "CTO"}},
			want: "role changed from Intern to CTO",
		},
		{
			name: "program status",
			change: models.ChangeRecord{EntityType: models.EntityTypeProgram, ChangeType: models.ChangeModified, FieldChanged: "status",
				PreviousValue: models.Fields{"status": "In Progress"}, NewValue: models.Fields{"status": "Blocked"}},
			want: "status changed from In Progress to Blocked",
		},
		{
			name: "risk added",
			change: models.ChangeRecord{EntityType: models.EntityTypeRisk, ChangeType: models.ChangeAdded,
				NewValue: models.Fields{"severity": "High"}},
			want: "New High risk detected.",
		},
		{
			name: "external event",
			change: models.ChangeRecord{EntityType: models.EntityTypeExternalEvent, ChangeType: models.ChangeAdded,
				NewValue: models.Fields{"event_type": "M&A", "title": "Acme buys Beta"}},
			want: "External event detected: M&A - Acme buys Beta. This may impact Acme strategic direction",
		},
		{
			name: "timeline status",
			change: models.ChangeRecord{EntityType: models.EntityTypeTimeline, ChangeType: models.ChangeModified, FieldChanged: "status",
				NewValue: models.Fields{"status": "Delayed"}},
			want: "status changed to Delayed",
		},
		{
			name:   "fallback",
			change: models.ChangeRecord{EntityType: models.EntityTypeGovernance, ChangeType: models.ChangeAdded},
			want:   "Material change detected in governance. Review for potential program impact.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Rationale("Acme", &tc.change)
			assert.True(t, strings.Contains(got, tc.want), "got %q", got)
		})
	}
}

func TestNewScorer_DefaultAccountName(t *testing.T) {
	s := NewScorer(DefaultTables(), "")
	a := s.Assess(&models.ChangeRecord{EntityType: models.EntityTypeStakeholder, ChangeType: models.ChangeAdded,
		NewValue: models.Fields{"name": "A", "role": "CEO"}})
	assert.Contains(t, a.Rationale, "the account organization")
}
