package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 3, WordCount("  one two\nthree "))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "abc", Prefix("abcdef", 3))
	assert.Equal(t, "ab", Prefix("ab", 3))
	assert.Equal(t, "", Prefix("ab", 0))
	assert.Equal(t, "→é", Prefix("→éx", 2))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Greater(t, EstimateTokens("hello world, this is a sentence"), 0)
}

func TestTruncateToTokenBudget(t *testing.T) {
	assert.Equal(t, "", TruncateToTokenBudget("anything", 0))
	assert.Equal(t, "short", TruncateToTokenBudget("short", 100))

	long := strings.Repeat("word ", 200)
	out := TruncateToTokenBudget(long, 10)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Less(t, len(out), len(long))
}

func TestAfterWord(t *testing.T) {
	rest, ok := AfterWord("Leadership departures May indicate change.", "may")
	assert.True(t, ok)
	assert.Equal(t, " indicate change.", rest)

	_, ok = AfterWord("nothing here", "may")
	assert.False(t, ok)
}

func TestAfterWord_WidthChangingRunes(t *testing.T) {
	// 'Ⱥ' lower-cases to a wider rune and 'İ' to a narrower one.
	rest, ok := AfterWord(strings.Repeat("Ⱥ", 40)+" may slip.", "may")
	assert.True(t, ok)
	assert.Equal(t, " slip.", rest)

	rest, ok = AfterWord("İİİİ departures MAY require attention.", "may")
	assert.True(t, ok)
	assert.Equal(t, " require attention.", rest)

	_, ok = AfterWord("ȺȺ", "may")
	assert.False(t, ok)

	rest, ok = AfterWord("anything", "")
	assert.True(t, ok)
	assert.Equal(t, "anything", rest)
}
