// Package scoring assigns significance scores, levels and rationales to change records.
package scoring

import (
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

// Tier awards Bonus when the inspected value equals one of Values.
type Tier struct {
	Values []string `json:"values" mapstructure:"values" yaml:"values"`
	Bonus  int      `json:"bonus" mapstructure:"bonus" yaml:"bonus"`
}

func (t Tier) matches(v string) bool {
	for _, candidate := range t.Values {
		if v == candidate {
			return true
		}
	}
	return false
}

// firstMatch returns the bonus of the first tier containing v, or 0.
func firstMatch(tiers []Tier, v string) int {
	if v == "" {
		return 0
	}
	for i := range tiers {
		if tiers[i].matches(v) {
			return tiers[i].Bonus
		}
	}
	return 0
}

// Tables holds every weight used by the scorer. Role and category tiers are
// lists rather than maps so configuration loaders cannot fold the case of the
// matched values.
type Tables struct {
	BaseScores       map[string]int `json:"base_scores" mapstructure:"base_scores" yaml:"base_scores"`
	DefaultBase      int            `json:"default_base" mapstructure:"default_base" yaml:"default_base"`
	ChangeTypeScores map[string]int `json:"change_type_scores" mapstructure:"change_type_scores" yaml:"change_type_scores"`
	StakeholderRoles []Tier         `json:"stakeholder_roles" mapstructure:"stakeholder_roles" yaml:"stakeholder_roles"`
	ProgramStatus    Tier           `json:"program_status" mapstructure:"program_status" yaml:"program_status"`
	RiskSeverity     []Tier         `json:"risk_severity" mapstructure:"risk_severity" yaml:"risk_severity"`
	EventCategories  []Tier         `json:"event_categories" mapstructure:"event_categories" yaml:"event_categories"`
}

// DefaultTables returns the production weights.
func DefaultTables() Tables {
	return Tables{
		BaseScores: map[string]int{
			string(models.EntityTypeStakeholder):   30,
			string(models.EntityTypeProgram):       25,
			string(models.EntityTypeRisk):          35,
			string(models.EntityTypeTimeline):      20,
			string(models.EntityTypeGovernance):    25,
			string(models.EntityTypeExternalEvent): 40,
		},
		DefaultBase: 10,
		ChangeTypeScores: map[string]int{
			string(models.ChangeAdded):    15,
			string(models.ChangeRemoved):  20,
			string(models.ChangeModified): 10,
		},
		StakeholderRoles: []Tier{
			{Values: []string{"CEO", "CFO", "CTO"}, Bonus: 40},
			{Values: []string{"Board Chairman", "Board Member"}, Bonus: 35},
			{Values: []string{"Executive Sponsor", "AI Program Lead"}, Bonus: 20},
		},
		ProgramStatus: Tier{Values: []string{"Blocked", "At Risk"}, Bonus: 30},
		RiskSeverity: []Tier{
			{Values: []string{"Critical"}, Bonus: 40},
			{Values: []string{"High"}, Bonus: 25},
		},
		EventCategories: []Tier{
			{Values: []string{"M&A", "Executive Change"}, Bonus: 40},
			{Values: []string{"SEC Filing (8-K)", "Regulatory Action"}, Bonus: 35},
			{Values: []string{"SEC Filing (10-K)", "SEC Filing (10-Q)"}, Bonus: 15},
		},
	}
}

// Assessment is the scorer's verdict on one change.
type Assessment struct {
	Score     int
	Level     models.SignificanceLevel
	Rationale string
}

// Scorer computes significance from a fixed set of tables.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	tables  Tables
	account string
}

// NewScorer creates a scorer. account names the tracked organization in rationales.
func NewScorer(tables Tables, account string) *Scorer {
	if account == "" {
		account = "the account"
	}
	return &Scorer{tables: tables, account: account}
}

// Tables returns the weights in use.
func (s *Scorer) Tables() Tables {
	return s.tables
}

// Assess scores the change and renders its rationale.
func (s *Scorer) Assess(c *models.ChangeRecord) Assessment {
	score := s.Score(c)
	level := models.LevelForScore(score)
	return Assessment{
		Score:     score,
		Level:     level,
		Rationale: Rationale(s.account, c),
	}
}

// Score returns the significance of the change clamped to [0,100].
func (s *Scorer) Score(c *models.ChangeRecord) int {
	base, ok := s.tables.BaseScores[string(c.EntityType)]
	if !ok {
		base = s.tables.DefaultBase
	}
	score := base + s.tables.ChangeTypeScores[string(c.ChangeType)]

	switch c.EntityType {
	case models.EntityTypeStakeholder:
		score += firstMatch(s.tables.StakeholderRoles, c.Subject().String("role"))
	case models.EntityTypeProgram:
		if c.FieldChanged == "status" && s.tables.ProgramStatus.matches(c.NewValue.String("status")) {
			score += s.tables.ProgramStatus.Bonus
		}
	case models.EntityTypeRisk:
		score += firstMatch(s.tables.RiskSeverity, c.NewValue.String("severity"))
	case models.EntityTypeExternalEvent:
		score += firstMatch(s.tables.EventCategories, c.NewValue.String("event_type"))
	}

	return clamp(score)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
