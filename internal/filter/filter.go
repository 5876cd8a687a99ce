// Package filter decides whether a fetched entry is eligible for delivery
// under a subscription's flags and keyword lists. Pure; no I/O.
package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/x2discord/x2d/internal/feed"
	"github.com/x2discord/x2d/internal/subscription"
	"github.com/x2discord/x2d/internal/textnorm"
)

// ShouldInclude applies the ordered predicates: repost rejection, quote
// rejection, exclude keywords, then the include-keyword gate. The first
// failing predicate decides.
func ShouldInclude(entry feed.Entry, sub subscription.Subscription) bool {
	if !sub.IncludeReposts && isRepost(entry.Text) {
		return false
	}
	if !sub.IncludeQuotes && isQuote(entry.Text, entry.RawText) {
		return false
	}
	combined := normalizedEntryText(entry.Text, entry.RawText)
	for _, keyword := range sub.ExcludeKeywords {
		if strings.Contains(combined, keyword) {
			return false
		}
	}
	if len(sub.IncludeKeywords) > 0 {
		for _, keyword := range sub.IncludeKeywords {
			if strings.Contains(combined, keyword) {
				return true
			}
		}
		return false
	}
	return true
}

// isRepost reports whether any non-empty line marks the entry as a repost:
// a literal リツイート prefix, or "rt" followed by end-of-line or a
// non-alphanumeric rune.
func isRepost(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		candidate := strings.ToLower(strings.TrimSpace(line))
		if candidate == "" {
			continue
		}
		if strings.HasPrefix(candidate, "リツイート") {
			return true
		}
		if strings.HasPrefix(candidate, "rt") {
			rest := candidate[2:]
			if rest == "" {
				return true
			}
			r, _ := utf8.DecodeRuneInString(rest)
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				return true
			}
		}
	}
	return false
}

// isQuote reports whether the entry quotes another post, from either the
// rendered text or RSSHub's structural quote marker in the raw markup.
func isQuote(text, rawText string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "quote tweet") ||
		strings.Contains(lower, "quoted tweet") ||
		strings.Contains(lower, "引用") {
		return true
	}
	return strings.Contains(strings.ToLower(rawText), "rsshub-quote")
}

// normalizedEntryText joins the normalized plain text and the normalized
// tag-stripped raw text for keyword matching.
func normalizedEntryText(text, rawText string) string {
	parts := make([]string, 0, 2)
	if text != "" {
		if p := textnorm.Normalize(text); p != "" {
			parts = append(parts, p)
		}
	}
	if rawText != "" {
		if p := textnorm.Normalize(textnorm.StripTags(rawText)); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
