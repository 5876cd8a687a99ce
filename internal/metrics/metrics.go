// Package metrics holds process-wide counters surfaced on the health
// endpoint.
package metrics

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Poller counts poll-loop activity.
type Poller struct {
	Polls        *xsync.Counter
	FetchErrors  *xsync.Counter
	RateLimited  *xsync.Counter
	Sent         *xsync.Counter
	SendFailures *xsync.Counter
	DedupHits    *xsync.Counter
	FilteredOut  *xsync.Counter
}

// NewPoller creates zeroed poller counters.
func NewPoller() *Poller {
	return &Poller{
		Polls:        xsync.NewCounter(),
		FetchErrors:  xsync.NewCounter(),
		RateLimited:  xsync.NewCounter(),
		Sent:         xsync.NewCounter(),
		SendFailures: xsync.NewCounter(),
		DedupHits:    xsync.NewCounter(),
		FilteredOut:  xsync.NewCounter(),
	}
}

// Snapshot returns the current counter values for serialization.
func (p *Poller) Snapshot() map[string]int64 {
	return map[string]int64{
		"polls":         p.Polls.Value(),
		"fetch_errors":  p.FetchErrors.Value(),
		"rate_limited":  p.RateLimited.Value(),
		"sent":          p.Sent.Value(),
		"send_failures": p.SendFailures.Value(),
		"dedup_hits":    p.DedupHits.Value(),
		"filtered_out":  p.FilteredOut.Value(),
	}
}
