package feed

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Entry is one item fetched from the upstream feed.
type Entry struct {
	// ID is a stable identifier, never empty. Derived via the fallback
	// chain guid -> link -> "<account>-<index>".
	ID string
	// Link is the canonical URL. May be empty.
	Link string
	// Text is the human-readable body, tags stripped and entities decoded.
	Text string
	// RawText is the original body including markup. Used for structural
	// detection (e.g. quote markers) only.
	RawText string
}

// entryID collapses the upstream identifier variants to a single string id.
func entryID(guid, link, account string, index int) string {
	if guid != "" {
		return guid
	}
	if link != "" {
		return link
	}
	return fmt.Sprintf("%s-%d", account, index)
}

// StripHTML removes markup from a feed body and decodes entities, returning
// trimmed plain text. Adjacent text nodes are concatenated without
// separators, matching how feed readers render inline markup.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	tok := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(tok.Text())
		}
	}
}
