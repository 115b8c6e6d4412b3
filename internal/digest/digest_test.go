package digest_test

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/openclaw-sentinel/internal/digest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
)

var now = time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newGenerator() *digest.Generator {
	cfg := digest.DefaultConfig()
	cfg.Account = "Acme"
	return digest.NewGenerator(cfg, testLogger())
}

func change(id string, et models.EntityType, ct models.ChangeType, score int, prev, next models.Fields, field string) models.ChangeRecord {
	return models.ChangeRecord{
		ChangeID:          id,
		EntityType:        et,
		EntityID:          id,
		ChangeType:        ct,
		PreviousValue:     prev,
		NewValue:          next,
		FieldChanged:      field,
		SignificanceScore: score,
		SignificanceLevel: models.LevelForScore(score),
		Rationale:         "Leadership restructuring may impact programs.",
		ChangeTimestamp:   now.Add(-24 * time.Hour),
	}
}

func event(id, eventType, title string) models.Entity {
	return models.Entity{Type: models.EntityTypeExternalEvent, ID: id, Data: models.Fields{"event_type": eventType, "title": title}}
}

func TestBuild_EmptyWindowIsGreenAndStable(t *testing.T) {
	d := newGenerator().Build(now, nil, nil)

	assert.Equal(t, digest.StatusGreen, d.Snapshot.Status)
	assert.Equal(t, digest.MomentumFlat, d.Snapshot.Momentum)
	assert.Equal(t, "No material changes detected this week; account remains stable.", d.Snapshot.Summary)
	assert.Equal(t, "No relevant external signals this week.", d.ExternalSignals)
	assert.Contains(t, d.Text, "📊 **ACME WEEKLY EXECUTIVE DIGEST**")
	assert.Contains(t, d.Text, "*Week of March 06, 2026*")
	assert.Contains(t, d.Text, "• No material changes this week")
	assert.Contains(t, d.Text, "• No material risks identified this week")
	assert.Contains(t, d.Text, "• No exec action required this week")
	assert.NotContains(t, d.Text, "**Opportunities:**")
	assert.LessOrEqual(t, d.WordCount, 250)
}

func TestBuild_ChangesOutsideWindowIgnored(t *testing.T) {
	old := change("old", models.EntityTypeRisk, models.ChangeAdded, 90, nil, models.Fields{"severity": "Critical"}, "")
	old.ChangeTimestamp = now.Add(-8 * 24 * time.Hour)

	d := newGenerator().Build(now, []models.ChangeRecord{old}, nil)
	assert.Equal(t, 0, d.ChangesAnalyzed)
	assert.Equal(t, digest.StatusGreen, d.Snapshot.Status)
}

func TestBuild_StatusThresholds(t *testing.T) {
	critical := func(id string) models.ChangeRecord {
		return change(id, models.EntityTypeRisk, models.ChangeModified, 80, nil, models.Fields{"owner": "x"}, "owner")
	}
	high := func(id string) models.ChangeRecord {
		return change(id, models.EntityTypeRisk, models.ChangeModified, 65, nil, models.Fields{"owner": "x"}, "owner")
	}

	g := newGenerator()
	d := g.Build(now, []models.ChangeRecord{critical("a")}, nil)
	assert.Equal(t, digest.StatusYellow, d.Snapshot.Status)
	assert.Equal(t, "Account showing some concerning signals; monitoring 1 high-priority changes.", d.Snapshot.Summary)

	var highs []models.ChangeRecord
	for i := 0; i < 5; i++ {
		highs = append(highs, high(fmt.Sprintf("h%d", i)))
	}
	assert.Equal(t, digest.StatusYellow, g.Build(now, highs, nil).Snapshot.Status)
	assert.Equal(t, digest.StatusGreen, g.Build(now, highs[:4], nil).Snapshot.Status)

	d = g.Build(now, []models.ChangeRecord{critical("a"), critical("b"), critical("c")}, nil)
	assert.Equal(t, digest.StatusRed, d.Snapshot.Status)
	assert.Equal(t, "Multiple critical issues requiring immediate attention; 3 critical changes detected.", d.Snapshot.Summary)
}

func TestBuild_Momentum(t *testing.T) {
	g := newGenerator()
	var added, removed []models.ChangeRecord
	for i := 0; i < 3; i++ {
		added = append(added, change(fmt.Sprintf("a%d", i), models.EntityTypeStakeholder, models.ChangeAdded, 45, nil, models.Fields{"role": "Engineer"}, ""))
		removed = append(removed, change(fmt.Sprintf("r%d", i), models.EntityTypeStakeholder, models.ChangeRemoved, 50, models.Fields{"role": "Engineer"}, nil, ""))
	}
	assert.Equal(t, digest.MomentumImproving, g.Build(now, added, nil).Snapshot.Momentum)
	assert.Equal(t, digest.MomentumDeteriorating, g.Build(now, removed, nil).Snapshot.Momentum)
	assert.Equal(t, digest.MomentumFlat, g.Build(now, append(added, removed...), nil).Snapshot.Momentum)
}

func TestBuild_WhatChangedOnlyMaterialTopFive(t *testing.T) {
	var changes []models.ChangeRecord
	for i := 0; i < 7; i++ {
		changes = append(changes, change(fmt.Sprintf("e%d", i), models.EntityTypeExternalEvent, models.ChangeAdded, 60+i,
			nil, models.Fields{"event_type": "News Article", "title": fmt.Sprintf("story %d", i)}, ""))
	}
	changes = append(changes, change("low", models.EntityTypeTimeline, models.ChangeModified, 30, nil, nil, "date"))

	d := newGenerator().Build(now, changes, nil)
	require.Len(t, d.WhatChanged, 5)
	assert.Equal(t, "News Article: story 6", d.WhatChanged[0])
	for _, line := range d.WhatChanged {
		assert.NotContains(t, line, "Timeline")
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		c    models.ChangeRecord
		want string
	}{
		{change("1", models.EntityTypeStakeholder, models.ChangeAdded, 85, nil, models.Fields{"name": "Ada", "role": "CEO"}, ""), "New CEO added: Ada"},
		{change("2", models.EntityTypeStakeholder, models.ChangeRemoved, 90, models.Fields{"name": "Bo", "role": "CFO"}, nil, ""), "CFO departed: Bo"},
		{change("3", models.EntityTypeStakeholder, models.ChangeModified, 40, models.Fields{"role": "Intern"}, models.Fields{"role": "Engineer"}, "role"), "Unknown role changed to Engineer"},
		{change("4", models.EntityTypeProgram, models.ChangeModified, 65, models.Fields{"status": "In Progress"}, models.Fields{"status": "Blocked"}, "status"), "Unknown status: In Progress → Blocked"},
		{change("5", models.EntityTypeRisk, models.ChangeAdded, 75, nil, models.Fields{"severity": "High", "description": strings.Repeat("x", 80)}, ""), "New High risk: " + strings.Repeat("x", 50)},
		{change("6", models.EntityTypeGovernance, models.ChangeRemoved, 45, models.Fields{}, nil, ""), "Governance removed"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, digest.Describe(&tc.c))
	}
}

func TestWhyItMatters(t *testing.T) {
	assert.Equal(t, "May impact programs.", digest.WhyItMatters("Leadership restructuring may impact programs."))
	assert.Equal(t, "Requires attention due to potential program impact.", digest.WhyItMatters("No modal verb here."))
	assert.Equal(t, "Requires attention due to potential program impact.", digest.WhyItMatters(""))
}

func TestBuild_KeyRisksRankedAndBounded(t *testing.T) {
	changes := []models.ChangeRecord{
		change("r1", models.EntityTypeRisk, models.ChangeAdded, 75, nil, models.Fields{"severity": "High", "description": "vendor slip"}, ""),
		change("r2", models.EntityTypeRisk, models.ChangeAdded, 90, nil, models.Fields{"severity": "Critical", "description": "data breach"}, ""),
		change("p1", models.EntityTypeProgram, models.ChangeModified, 65, models.Fields{"status": "In Progress"}, models.Fields{"status": "Blocked"}, "status"),
		change("s1", models.EntityTypeStakeholder, models.ChangeAdded, 85, nil, models.Fields{"name": "Ada", "role": "CEO"}, ""),
		change("t1", models.EntityTypeTimeline, models.ChangeModified, 30, nil, models.Fields{"date": "x"}, "date"),
	}
	d := newGenerator().Build(now, changes, nil)

	require.Len(t, d.Risks, 3)
	assert.Equal(t, "r2", d.Risks[0].ChangeID)
	assert.Equal(t, "Program delay or failure if unresolved within 48 hours.", d.Risks[0].Outcome)
	assert.Equal(t, "s1", d.Risks[1].ChangeID)
	assert.Equal(t, "Strategic direction may shift; relationship reset needed.", d.Risks[1].Outcome)
	assert.Equal(t, "r1", d.Risks[2].ChangeID)
	assert.Equal(t, "Timeline slippage likely within next sprint.", d.Risks[2].Outcome)
	assert.Contains(t, d.Text, "1. New Critical risk: data breach\n   ↳ May impact programs.")
}

func TestBuild_Opportunities(t *testing.T) {
	events := []models.Entity{
		event("e1", "Partnership", "Acme partners with Gamma on AI"),
		event("e2", "M&A", "Acme acquires Beta"),
		event("e3", "News Article", "Quarterly update"),
	}
	changes := []models.ChangeRecord{
		change("p1", models.EntityTypeProgram, models.ChangeModified, 35,
			models.Fields{"status": "In Progress"}, models.Fields{"status": "Completed", "name": "CDD"}, "status"),
		change("p2", models.EntityTypeProgram, models.ChangeModified, 35,
			models.Fields{"status": "In Progress"}, models.Fields{"status": "Completed", "name": "Pricing"}, "status"),
	}
	d := newGenerator().Build(now, changes, events)

	require.Len(t, d.Opportunities, 3)
	assert.Equal(t, "Leverage Acme partnership: Acme partners with Gamma on AI", d.Opportunities[0].Description)
	assert.Equal(t, "M&A activity: Acme acquires Beta", d.Opportunities[1].Description)
	assert.Equal(t, "Expand CDD scope", d.Opportunities[2].Description)
	assert.Contains(t, d.Text, "**Opportunities:**")
}

func TestBuild_NonASCIINamesInRationale(t *testing.T) {
	name := strings.Repeat("Ⱥ", 40)
	c := change("s1", models.EntityTypeStakeholder, models.ChangeAdded, 85, nil, models.Fields{"name": name, "role": "CEO"}, "")
	c.Rationale = fmt.Sprintf("New CEO %s may reshape account priorities.", name)
	other := change("s2", models.EntityTypeStakeholder, models.ChangeAdded, 85, nil, models.Fields{"name": "İlkay Şahin", "role": "CFO"}, "")
	other.Rationale = "New CFO İlkay Şahin MAY revisit the budget."

	var d digest.Digest
	require.NotPanics(t, func() { d = newGenerator().Build(now, []models.ChangeRecord{c, other}, nil) })
	require.Len(t, d.Risks, 2)
	why := []string{d.Risks[0].WhyItMatters, d.Risks[1].WhyItMatters}
	assert.ElementsMatch(t, []string{"May reshape account priorities.", "May revisit the budget."}, why)
	assert.Contains(t, d.Text, "↳ May reshape account priorities.")
}

func TestBuild_ActionsFromCriticalChanges(t *testing.T) {
	changes := []models.ChangeRecord{
		change("s1", models.EntityTypeStakeholder, models.ChangeAdded, 85, nil, models.Fields{"name": "Ada", "role": "CEO"}, ""),
		change("r1", models.EntityTypeRisk, models.ChangeAdded, 90, nil, models.Fields{"severity": "Critical"}, ""),
		change("r2", models.EntityTypeRisk, models.ChangeAdded, 90, nil, models.Fields{"severity": "Critical"}, ""),
		change("p1", models.EntityTypeProgram, models.ChangeModified, 80,
			models.Fields{"status": "At Risk"}, models.Fields{"status": "Blocked", "name": "CDD"}, "status"),
		change("s2", models.EntityTypeStakeholder, models.ChangeAdded, 45, nil, models.Fields{"role": "CTO"}, ""),
	}
	d := newGenerator().Build(now, changes, nil)

	require.Len(t, d.Actions, 3)
	assert.Equal(t, "Review critical risk mitigation plan", d.Actions[0].Action)
	assert.Equal(t, "Immediate", d.Actions[0].Due)
	assert.Equal(t, "Schedule intro with new CEO", d.Actions[1].Action)
	assert.Equal(t, "Account Lead", d.Actions[1].Owner)
	assert.Equal(t, "Unblock CDD - escalate internally", d.Actions[2].Action)
	assert.Contains(t, d.Text, "• Unblock CDD - escalate internally (Delivery Lead, by This week)")
}

func TestBuild_ExternalSignals(t *testing.T) {
	g := newGenerator()
	events := []models.Entity{
		event("1", "M&A", "a"),
		event("2", "M&A", "b"),
		event("3", "Executive Change", "c"),
		event("4", "SEC Filing (10-Q)", "d"),
		event("5", "News Article", "e"),
		{Type: models.EntityTypeRisk, ID: "ignored"},
	}
	d := g.Build(now, nil, events)
	assert.Equal(t, 5, d.EventsAnalyzed)
	assert.Equal(t, "M&A activity detected (2 events); 1 leadership changes; Financial results published. Monitoring for strategic implications.", d.ExternalSignals)

	d = g.Build(now, nil, []models.Entity{event("1", "News Article", "x"), event("2", "Partnership", "y")})
	assert.Equal(t, "2 other developments. Monitoring for strategic implications.", d.ExternalSignals)
}

func TestBuild_SectionsAppearInOrder(t *testing.T) {
	d := newGenerator().Build(now, nil, []models.Entity{event("1", "Partnership", "x")})
	order := []string{"**Account Snapshot:**", "**What Changed:**", "**Key Risks:**", "**Opportunities:**", "**Actions Needed:**", "**External Signals:**"}
	last := -1
	for _, heading := range order {
		idx := strings.Index(d.Text, heading)
		require.GreaterOrEqual(t, idx, 0, heading)
		assert.Greater(t, idx, last, heading)
		last = idx
	}
}
