// Package poller drives the polling and delivery engine: it decides when
// each subscription fetches, detects new entries against the per-feed
// watermark, suppresses duplicates, filters, and forwards survivors to the
// notifier exactly once per channel.
package poller

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/x2discord/x2d/internal/dedup"
	"github.com/x2discord/x2d/internal/feed"
	"github.com/x2discord/x2d/internal/filter"
	"github.com/x2discord/x2d/internal/metrics"
	"github.com/x2discord/x2d/internal/scanloop"
	"github.com/x2discord/x2d/internal/subscription"
)

const (
	// tickDelay paces full passes over the subscription list.
	tickDelay = time.Second
	// emptyListDelay applies while there is nothing to poll.
	emptyListDelay = 5 * time.Second

	// firstPollMaxResults keeps the initial watermark-seeding fetch cheap;
	// steadyMaxResults covers bursts between steady-state polls.
	firstPollMaxResults = 1
	steadyMaxResults    = 5
)

// Notifier forwards one entry to a chat channel. threadID 0 targets the
// channel itself.
type Notifier interface {
	Send(ctx context.Context, channelID, threadID int64, account, text, link string) error
}

// SubSource supplies subscription snapshots.
type SubSource interface {
	List() []subscription.Subscription
}

// WatermarkStore persists the per-(channel, account) last-seen entry id.
type WatermarkStore interface {
	LastSeen(channelID int64, account string) (string, bool)
	SetLastSeen(channelID int64, account, entryID string) error
}

// DeliveryRecord describes one successfully forwarded entry.
type DeliveryRecord struct {
	ChannelID int64
	ThreadID  int64
	Account   string
	EntryID   string
	Link      string
	SentAt    time.Time
}

// DeliveryRecorder receives a record after each successful send.
type DeliveryRecorder interface {
	EmitDelivery(rec DeliveryRecord)
}

type stateKey struct {
	channelID int64
	account   string
}

// pollState is the per-subscription runtime state. Created lazily; stale
// entries for removed subscriptions are simply never looked up again.
type pollState struct {
	nextRun time.Time
	lastID  string
	backoff int
}

// Config wires the engine's collaborators. Recorder and Metrics are
// optional.
type Config struct {
	Notifier   Notifier
	Subs       SubSource
	Feed       feed.Client
	Dedup      dedup.Store
	Watermarks WatermarkStore
	Recorder   DeliveryRecorder
	Metrics    *metrics.Poller

	// NowFn provides the scheduling clock. Defaults to time.Now;
	// injectable for testing.
	NowFn func() time.Time
}

// Engine owns the tick loop and all per-subscription runtime state. All
// state is touched only from the loop goroutine.
type Engine struct {
	notifier Notifier
	subs     SubSource
	feed     feed.Client
	dedup    dedup.Store
	marks    WatermarkStore
	recorder DeliveryRecorder
	metrics  *metrics.Poller

	nowFn func() time.Time

	state map[stateKey]*pollState
	gate  *accountGate

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEngine creates an engine from its collaborators.
func NewEngine(cfg Config) *Engine {
	if cfg.Notifier == nil || cfg.Subs == nil || cfg.Feed == nil ||
		cfg.Dedup == nil || cfg.Watermarks == nil {
		panic("poller: NewEngine requires notifier, subs, feed, dedup, and watermarks")
	}
	nowFn := cfg.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Engine{
		notifier: cfg.Notifier,
		subs:     cfg.Subs,
		feed:     cfg.Feed,
		dedup:    cfg.Dedup,
		marks:    cfg.Watermarks,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		nowFn:    nowFn,
		state:    make(map[stateKey]*pollState),
		gate:     newAccountGate(accountMinInterval),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the tick loop goroutine.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		scanloop.Run(e.stopCh, e.tick)
	}()
}

// Stop signals the loop to stop and waits for the in-flight tick to finish.
// No poll is interrupted mid-send.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// tick runs one pass over the full subscription list and returns the delay
// before the next pass.
func (e *Engine) tick() time.Duration {
	subs := e.subs.List()
	if len(subs) == 0 {
		return emptyListDelay
	}
	now := e.nowFn()
	for _, sub := range subs {
		select {
		case <-e.stopCh:
			return tickDelay
		default:
		}
		e.maybePoll(sub, now)
	}
	return tickDelay
}

// maybePoll seeds runtime state for the subscription, applies the account
// gate, and polls when due.
func (e *Engine) maybePoll(sub subscription.Subscription, now time.Time) {
	key := stateKey{channelID: sub.ChannelID, account: sub.Account}
	st, ok := e.state[key]
	if !ok {
		st = &pollState{backoff: 1}
		e.state[key] = st
	}

	if st.lastID == "" {
		if sub.LastTweetID != "" {
			st.lastID = sub.LastTweetID
			log.Printf("[poller] initialized watermark for %s in channel %d: %s",
				sub.Account, sub.ChannelID, st.lastID)
		} else if persisted, found := e.marks.LastSeen(sub.ChannelID, sub.Account); found {
			st.lastID = persisted
			log.Printf("[poller] loaded persisted watermark for %s in channel %d: %s",
				sub.Account, sub.ChannelID, persisted)
		}
	}

	if earliest, allowed := e.gate.allow(sub.Account, now); !allowed {
		// Account slot taken by another channel; defer to the earliest
		// legal time without fetching.
		if earliest.After(st.nextRun) {
			st.nextRun = earliest
		}
		return
	}
	if now.Before(st.nextRun) {
		return
	}

	log.Printf("[poller] polling %s for channel %d (interval %ds)",
		sub.Account, sub.ChannelID, sub.IntervalSeconds)
	e.poll(sub, st)
}

// poll fetches the subscription's feed and delivers new eligible entries.
func (e *Engine) poll(sub subscription.Subscription, st *pollState) {
	e.countPoll()

	seenID := st.lastID
	maxResults := steadyMaxResults
	if seenID == "" {
		maxResults = firstPollMaxResults
	}

	// Reserve the account slot before fetching so the spacing holds even
	// while the request is in flight.
	e.gate.reserve(sub.Account, e.nowFn())

	entries, err := e.feed.Fetch(context.Background(), sub.Account, maxResults)
	if err != nil {
		e.handleFetchError(sub, st, err)
		return
	}

	st.nextRun = e.nowFn().Add(time.Duration(sub.IntervalSeconds) * time.Second)
	st.backoff = 1

	if len(entries) == 0 {
		return
	}
	latestID := entries[0].ID

	if seenID == "" {
		// First poll seeds the watermark; nothing is sent.
		e.advanceWatermark(sub, st, latestID)
		log.Printf("[poller] first poll for %s in channel %d, watermark set to %s",
			sub.Account, sub.ChannelID, latestID)
		return
	}

	type pending struct {
		entry   feed.Entry
		sendKey string
	}
	var newPosts []pending
	for _, entry := range entries {
		if entry.ID == seenID {
			// Everything from here on is older than the watermark.
			break
		}
		if e.alreadySent(sub.ChannelID, entry.ID, entry.Link) {
			e.countDedupHit()
			continue
		}
		sendKey := entry.Link
		if sendKey == "" {
			sendKey = entry.ID
		}
		if sendKey == "" {
			log.Printf("[poller] entry has no id or link, skipping (account %s)", sub.Account)
			continue
		}
		if !filter.ShouldInclude(entry, sub) {
			e.countFiltered()
			continue
		}
		newPosts = append(newPosts, pending{entry: entry, sendKey: sendKey})
	}

	// The watermark advances even when every candidate was filtered or
	// deduplicated; otherwise the same entries would be re-examined forever.
	if len(newPosts) == 0 {
		e.advanceWatermark(sub, st, latestID)
		return
	}

	// Deliver oldest first.
	for i := len(newPosts) - 1; i >= 0; i-- {
		p := newPosts[i]
		err := e.notifier.Send(context.Background(), sub.ChannelID, sub.ThreadID,
			sub.Account, p.entry.Text, p.entry.Link)
		if err != nil {
			// Not recorded in dedup, so the entry is retried next poll.
			e.countSendFailure()
			log.Printf("[poller] send failed for %s in channel %d: %v",
				sub.Account, sub.ChannelID, err)
			continue
		}
		e.recordSent(sub.ChannelID, p.sendKey, p.entry.ID, p.entry.Link)
		e.countSent()
		if e.recorder != nil {
			e.recorder.EmitDelivery(DeliveryRecord{
				ChannelID: sub.ChannelID,
				ThreadID:  sub.ThreadID,
				Account:   sub.Account,
				EntryID:   p.entry.ID,
				Link:      p.entry.Link,
				SentAt:    e.nowFn(),
			})
		}
	}

	e.advanceWatermark(sub, st, latestID)
	log.Printf("[poller] watermark for %s in channel %d advanced to %s",
		sub.Account, sub.ChannelID, latestID)
}

// handleFetchError applies the per-kind rescheduling policy. The watermark
// never moves on a failed fetch.
func (e *Engine) handleFetchError(sub subscription.Subscription, st *pollState, err error) {
	e.countFetchError()
	now := e.nowFn()
	interval := time.Duration(sub.IntervalSeconds) * time.Second

	var statusErr *feed.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests:
			e.countRateLimited()
			backoff := rateLimitBackoff(statusErr.RetryAfter, sub.IntervalSeconds, st.backoff)
			if next := now.Add(backoff); next.After(st.nextRun) {
				st.nextRun = next
			}
			st.backoff = nextBackoffMultiplier(st.backoff)
			log.Printf("[poller] rate limited for %s: backing off %s", sub.Account, backoff)
			return
		case http.StatusForbidden:
			deferral := interval
			if deferral < time.Minute {
				deferral = time.Minute
			}
			if next := now.Add(deferral); next.After(st.nextRun) {
				st.nextRun = next
			}
			log.Printf("[poller] access denied for %s: deferring %s", sub.Account, deferral)
			return
		}
	}

	st.nextRun = now.Add(interval)
	log.Printf("[poller] fetch failed for %s: %v", sub.Account, err)
}

// alreadySent checks both dedup keys for the channel.
func (e *Engine) alreadySent(channelID int64, entryID, entryLink string) bool {
	ctx := context.Background()
	if entryID != "" && e.dedup.Contains(ctx, channelID, entryID) {
		return true
	}
	if entryLink != "" && e.dedup.Contains(ctx, channelID, entryLink) {
		return true
	}
	return false
}

// recordSent records the send key plus the id and link keys when distinct,
// so either form of the entry is suppressed later.
func (e *Engine) recordSent(channelID int64, sendKey, entryID, entryLink string) {
	ctx := context.Background()
	e.dedup.Add(ctx, channelID, sendKey)
	if entryID != "" && entryID != sendKey {
		e.dedup.Add(ctx, channelID, entryID)
	}
	if entryLink != "" && entryLink != sendKey {
		e.dedup.Add(ctx, channelID, entryLink)
	}
}

// advanceWatermark moves the in-memory watermark and persists it. A failed
// write is logged; the in-memory state still advances (worst case is one
// round of re-delivery after a restart, absorbed by the dedup store).
func (e *Engine) advanceWatermark(sub subscription.Subscription, st *pollState, latestID string) {
	st.lastID = latestID
	if err := e.marks.SetLastSeen(sub.ChannelID, sub.Account, latestID); err != nil {
		log.Printf("[poller] watermark persist failed for %s in channel %d: %v",
			sub.Account, sub.ChannelID, err)
	}
}

func (e *Engine) countPoll() {
	if e.metrics != nil {
		e.metrics.Polls.Inc()
	}
}

func (e *Engine) countFetchError() {
	if e.metrics != nil {
		e.metrics.FetchErrors.Inc()
	}
}

func (e *Engine) countRateLimited() {
	if e.metrics != nil {
		e.metrics.RateLimited.Inc()
	}
}

func (e *Engine) countSent() {
	if e.metrics != nil {
		e.metrics.Sent.Inc()
	}
}

func (e *Engine) countSendFailure() {
	if e.metrics != nil {
		e.metrics.SendFailures.Inc()
	}
}

func (e *Engine) countDedupHit() {
	if e.metrics != nil {
		e.metrics.DedupHits.Inc()
	}
}

func (e *Engine) countFiltered() {
	if e.metrics != nil {
		e.metrics.FilteredOut.Inc()
	}
}
