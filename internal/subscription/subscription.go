// Package subscription holds the (channel, account) binding model and its
// JSON-file persistence, including the per-subscription watermark.
package subscription

import (
	"errors"
	"strings"
)

// ErrEmptyAccount is returned when account normalization yields nothing.
var ErrEmptyAccount = errors.New("subscription: account name required")

// Subscription binds one upstream account to one destination channel.
// The store hands out copies, never live references.
type Subscription struct {
	ChannelID       int64
	Account         string
	IntervalSeconds int
	IncludeReposts  bool
	IncludeQuotes   bool
	IncludeKeywords []string
	ExcludeKeywords []string
	// ThreadID targets a thread inside the channel. 0 means none.
	ThreadID int64
	// LastTweetID is the watermark snapshot at load time.
	LastTweetID string
}

// NormalizeAccount canonicalizes a user-supplied account handle: trims
// whitespace, strips trailing slashes, reduces profile URLs to the handle,
// and drops a single leading "@".
func NormalizeAccount(value string) (string, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		return "", ErrEmptyAccount
	}
	candidate = strings.TrimRight(candidate, "/")
	if strings.HasPrefix(candidate, "https://") || strings.HasPrefix(candidate, "http://") {
		if idx := strings.LastIndex(candidate, "/"); idx >= 0 {
			candidate = candidate[idx+1:]
		}
	}
	candidate = strings.TrimPrefix(candidate, "@")
	if candidate == "" {
		return "", ErrEmptyAccount
	}
	return candidate, nil
}
