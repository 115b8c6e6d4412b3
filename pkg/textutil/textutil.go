// Package textutil holds small text helpers shared by formatters and extractors.
package textutil

import (
	"strings"
	"unicode/utf8"
)

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Prefix returns at most n runes of s.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// EstimateTokens provides a rough token count estimate.
// Uses the heuristic of ~4 characters per token for English text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	chars := len(text)

	wordEstimate := int(float64(words) * 1.3)
	charEstimate := chars / 4

	return (wordEstimate + charEstimate) / 2
}

// TruncateToTokenBudget truncates text to approximately fit within a token
// budget, cutting at a word boundary when one is close.
func TruncateToTokenBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(text) <= budget {
		return text
	}

	maxChars := budget * 4
	if maxChars >= len(text) {
		return text
	}

	truncated := Prefix(text, maxChars)
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > len(truncated)/2 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

// AfterWord returns the remainder of text following the first occurrence of
// word, matched case-insensitively, and whether it was found. Matching walks
// text rune by rune so the returned offset is always valid for text, even
// when case folding changes a rune's encoded width.
func AfterWord(text, word string) (string, bool) {
	if word == "" {
		return text, true
	}
	n := utf8.RuneCountInString(word)
	for start := range text {
		end := start
		for k := 0; k < n && end < len(text); k++ {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
		}
		if strings.EqualFold(text[start:end], word) {
			return text[end:], true
		}
		if end == len(text) {
			break
		}
	}
	return "", false
}
