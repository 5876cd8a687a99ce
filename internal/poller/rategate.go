package poller

import (
	"time"
)

// accountMinInterval is the global minimum spacing between fetches for the
// same upstream account, across all channels.
const accountMinInterval = 30 * time.Second

// maxBackoffMultiplier caps the exponential rate-limit backoff.
const maxBackoffMultiplier = 16

// accountGate enforces the per-account fetch spacing. Owned by the engine
// and touched only from the tick goroutine, so no locking.
type accountGate struct {
	minInterval time.Duration
	lastCall    map[string]time.Time
}

func newAccountGate(minInterval time.Duration) *accountGate {
	return &accountGate{
		minInterval: minInterval,
		lastCall:    make(map[string]time.Time),
	}
}

// allow reports whether the account may fetch at now. When it may not, the
// returned time is the earliest legal slot.
func (g *accountGate) allow(account string, now time.Time) (time.Time, bool) {
	last, ok := g.lastCall[account]
	if !ok {
		return time.Time{}, true
	}
	earliest := last.Add(g.minInterval)
	if now.Before(earliest) {
		return earliest, false
	}
	return time.Time{}, true
}

// reserve records a fetch slot for the account. Called before the fetch so
// the slot is visible while the request is in flight.
func (g *accountGate) reserve(account string, now time.Time) {
	g.lastCall[account] = now
}

// rateLimitBackoff computes the deferral after an upstream 429. A usable
// Retry-After wins (floored to the subscription interval); otherwise the
// exponential multiplier applies over max(interval, 60s).
func rateLimitBackoff(retryAfterSeconds, intervalSeconds, multiplier int) time.Duration {
	if retryAfterSeconds > 0 {
		seconds := retryAfterSeconds
		if intervalSeconds > seconds {
			seconds = intervalSeconds
		}
		return time.Duration(seconds) * time.Second
	}
	base := intervalSeconds
	if base < 60 {
		base = 60
	}
	return time.Duration(base*multiplier) * time.Second
}

// nextBackoffMultiplier doubles the multiplier up to the cap.
func nextBackoffMultiplier(multiplier int) int {
	multiplier *= 2
	if multiplier > maxBackoffMultiplier {
		return maxBackoffMultiplier
	}
	return multiplier
}
