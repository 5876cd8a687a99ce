// Package textnorm provides the text normalization shared by keyword
// matching and filtering: NFKC compatibility normalization, Unicode case
// folding, and whitespace trimming.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	keywordSplitPattern = regexp.MustCompile(`[\n,]+`)
	htmlTagPattern      = regexp.MustCompile(`<[^>]+>`)
)

// Normalize applies NFKC normalization, case folding, and outer whitespace
// trimming. Idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	folded := cases.Fold().String(norm.NFKC.String(s))
	return strings.TrimSpace(folded)
}

// NormalizeKeywords normalizes each keyword and drops empty results,
// preserving order.
func NormalizeKeywords(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if candidate := Normalize(v); candidate != "" {
			out = append(out, candidate)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseKeywordInput splits a user-supplied keyword string on runs of commas
// and newlines and normalizes each piece.
func ParseKeywordInput(value string) []string {
	if value == "" {
		return nil
	}
	return NormalizeKeywords(keywordSplitPattern.Split(value, -1))
}

// StripTags replaces HTML tag spans with a single space. The space (rather
// than the empty string) preserves word boundaries for substring matching.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	return htmlTagPattern.ReplaceAllString(s, " ")
}
