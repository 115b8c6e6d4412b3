package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForScore_Boundaries(t *testing.T) {
	cases := []struct {
		score int
		want  SignificanceLevel
	}{
		{100, LevelCritical},
		{75, LevelCritical},
		{74, LevelHigh},
		{60, LevelHigh},
		{59, LevelMedium},
		{40, LevelMedium},
		{39, LevelLow},
		{0, LevelLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LevelForScore(tc.score), "score %d", tc.score)
	}
}

func TestLevelForScore_Monotonic(t *testing.T) {
	rank := map[SignificanceLevel]int{LevelLow: 0, LevelMedium: 1, LevelHigh: 2, LevelCritical: 3}
	prev := rank[LevelForScore(0)]
	for s := 1; s <= 100; s++ {
		cur := rank[LevelForScore(s)]
		require.GreaterOrEqual(t, cur, prev, "level dropped at score %d", s)
		prev = cur
	}
}

func TestEntityTypeLabel(t *testing.T) {
	assert.Equal(t, "External Event", EntityTypeExternalEvent.Label())
	assert.Equal(t, "Stakeholder", EntityTypeStakeholder.Label())
	assert.Equal(t, "Custom Thing", EntityType("custom_thing").Label())
}

func TestEntityTypeIsKnown(t *testing.T) {
	for _, et := range KnownEntityTypes {
		assert.True(t, et.IsKnown(), et)
	}
	assert.False(t, EntityType("vendor").IsKnown())
}

func TestEntityValidate(t *testing.T) {
	require.NoError(t, Entity{Type: EntityTypeRisk, ID: "r1"}.Validate())
	assert.Error(t, Entity{ID: "r1"}.Validate())
	assert.Error(t, Entity{Type: EntityTypeRisk, ID: "  "}.Validate())
}

func TestFieldsString(t *testing.T) {
	f := Fields{"name": "Ada", "count": 3, "nil": nil}
	assert.Equal(t, "Ada", f.String("name"))
	assert.Equal(t, "3", f.String("count"))
	assert.Equal(t, "", f.String("nil"))
	assert.Equal(t, "", f.String("missing"))
	assert.Equal(t, "Unknown", f.StringOr("missing", "Unknown"))

	var empty Fields
	assert.Equal(t, "", empty.String("name"))
	assert.Nil(t, empty.Clone())
}

func TestFieldsCloneIsIndependent(t *testing.T) {
	f := Fields{"a": 1}
	c := f.Clone()
	c["a"] = 2
	assert.Equal(t, 1, f["a"])
}

func TestChangeRecordSubject(t *testing.T) {
	c := ChangeRecord{PreviousValue: Fields{"name": "old"}}
	assert.Equal(t, "old", c.Subject().String("name"))
	c.NewValue = Fields{"name": "new"}
	assert.Equal(t, "new", c.Subject().String("name"))
}

func TestDedupKeysAgree(t *testing.T) {
	c := ChangeRecord{EntityType: EntityTypeStakeholder, EntityID: "a@x.com", ChangeType: ChangeAdded}
	a := Alert{EntityType: c.EntityType, EntityID: c.EntityID, ChangeType: c.ChangeType}
	h := AlertHistoryRecord{EntityType: c.EntityType, EntityID: c.EntityID, ChangeType: c.ChangeType}
	assert.Equal(t, c.DedupKey(), a.DedupKey())
	assert.Equal(t, c.DedupKey(), h.DedupKey())
}

func TestStatusFromRuns(t *testing.T) {
	assert.Equal(t, StatusFailed, StatusFromRuns(nil))
	assert.Equal(t, StatusSuccess, StatusFromRuns([]SourceRun{{Status: StatusSuccess}, {Status: StatusSuccess}}))
	assert.Equal(t, StatusPartial, StatusFromRuns([]SourceRun{{Status: StatusSuccess}, {Status: StatusFailed}}))
	assert.Equal(t, StatusFailed, StatusFromRuns([]SourceRun{{Status: StatusFailed}}))
}
