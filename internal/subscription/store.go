package subscription

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/x2discord/x2d/internal/textnorm"
)

// record is the persisted form of one subscription within a channel bucket.
type record struct {
	Account               string   `json:"account"`
	IntervalSeconds       int      `json:"interval_seconds,omitempty"`
	LegacyIntervalMinutes float64  `json:"interval_minutes,omitempty"`
	IncludeReposts        bool     `json:"include_reposts"`
	IncludeQuotes         bool     `json:"include_quotes"`
	IncludeKeywords       []string `json:"include_keywords,omitempty"`
	ExcludeKeywords       []string `json:"exclude_keywords,omitempty"`
	ThreadID              int64    `json:"thread_id,omitempty"`
	LastTweetID           string   `json:"last_tweet_id,omitempty"`
}

type document struct {
	Subscriptions map[string][]record `json:"subscriptions"`
}

// Store persists subscriptions (and their watermarks) in a single JSON file
// under a mutex. Reads return snapshots; every mutation rewrites the file.
type Store struct {
	path            string
	defaultInterval int
	minInterval     int

	mu   sync.Mutex
	data map[string][]record
}

// NewStore loads (or creates) the subscriptions file at path.
func NewStore(path string, defaultIntervalSeconds, minIntervalSeconds int) (*Store, error) {
	s := &Store{
		path:            path,
		defaultInterval: defaultIntervalSeconds,
		minInterval:     minIntervalSeconds,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if dir := filepath.Dir(s.path); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return fmt.Errorf("subscription: create state dir: %w", mkErr)
			}
		}
		s.data = map[string][]record{}
		return s.save()
	}
	if err != nil {
		return fmt.Errorf("subscription: read %s: %w", s.path, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		// A corrupt file starts over empty rather than blocking startup.
		s.data = map[string][]record{}
		return nil
	}
	if doc.Subscriptions == nil {
		doc.Subscriptions = map[string][]record{}
	}
	s.data = doc.Subscriptions
	return nil
}

// save writes the document pretty-printed. Caller must hold s.mu (or be the
// constructor before the store is shared).
func (s *Store) save() error {
	payload, err := json.MarshalIndent(document{Subscriptions: s.data}, "", "  ")
	if err != nil {
		return fmt.Errorf("subscription: encode: %w", err)
	}
	if err := os.WriteFile(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("subscription: write %s: %w", s.path, err)
	}
	return nil
}

// DefaultIntervalSeconds returns the interval applied when Add omits one.
func (s *Store) DefaultIntervalSeconds() int { return s.defaultInterval }

// MinIntervalSeconds returns the interval floor.
func (s *Store) MinIntervalSeconds() int { return s.minInterval }

func (s *Store) deriveInterval(rec record) int {
	if rec.IntervalSeconds > 0 {
		return rec.IntervalSeconds
	}
	if rec.LegacyIntervalMinutes > 0 {
		return int(rec.LegacyIntervalMinutes * 60)
	}
	return s.defaultInterval
}

func (s *Store) toSubscription(channelID int64, rec record) Subscription {
	return Subscription{
		ChannelID:       channelID,
		Account:         rec.Account,
		IntervalSeconds: s.deriveInterval(rec),
		IncludeReposts:  rec.IncludeReposts,
		IncludeQuotes:   rec.IncludeQuotes,
		IncludeKeywords: append([]string(nil), rec.IncludeKeywords...),
		ExcludeKeywords: append([]string(nil), rec.ExcludeKeywords...),
		ThreadID:        rec.ThreadID,
		LastTweetID:     rec.LastTweetID,
	}
}

func findRecord(bucket []record, account string) int {
	for i, rec := range bucket {
		if strings.EqualFold(rec.Account, account) {
			return i
		}
	}
	return -1
}

// AddOptions carries the optional fields of Add.
type AddOptions struct {
	IntervalSeconds int // 0 means the store default
	IncludeReposts  bool
	IncludeQuotes   bool
	IncludeKeywords []string // raw user input, normalized here
	ExcludeKeywords []string
	ThreadID        int64
}

// Add creates or replaces the subscription for (channelID, account). An
// existing subscription keeps its watermark so re-adding does not replay
// history.
func (s *Store) Add(channelID int64, account string, opts AddOptions) (Subscription, error) {
	normalized, err := NormalizeAccount(account)
	if err != nil {
		return Subscription{}, err
	}
	interval := opts.IntervalSeconds
	if interval == 0 {
		interval = s.defaultInterval
	}
	if interval < s.minInterval {
		return Subscription{}, fmt.Errorf("subscription: interval must be at least %d seconds", s.minInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strconv.FormatInt(channelID, 10)
	bucket := s.data[key]
	rec := record{
		Account:         normalized,
		IntervalSeconds: interval,
		IncludeReposts:  opts.IncludeReposts,
		IncludeQuotes:   opts.IncludeQuotes,
		IncludeKeywords: textnorm.NormalizeKeywords(opts.IncludeKeywords),
		ExcludeKeywords: textnorm.NormalizeKeywords(opts.ExcludeKeywords),
		ThreadID:        opts.ThreadID,
	}
	if i := findRecord(bucket, normalized); i >= 0 {
		rec.LastTweetID = bucket[i].LastTweetID
		bucket[i] = rec
	} else {
		bucket = append(bucket, rec)
	}
	s.data[key] = bucket
	if err := s.save(); err != nil {
		return Subscription{}, err
	}
	return s.toSubscription(channelID, rec), nil
}

// UpdateOptions carries the optional mutations of Update. Nil pointers leave
// the current value in place.
type UpdateOptions struct {
	IntervalSeconds *int
	IncludeReposts  *bool
	IncludeQuotes   *bool
}

// Update mutates an existing subscription in place.
func (s *Store) Update(channelID int64, account string, opts UpdateOptions) (Subscription, error) {
	normalized, err := NormalizeAccount(account)
	if err != nil {
		return Subscription{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strconv.FormatInt(channelID, 10)
	bucket := s.data[key]
	i := findRecord(bucket, normalized)
	if i < 0 {
		return Subscription{}, fmt.Errorf("subscription: %s is not being watched in this channel", normalized)
	}
	rec := bucket[i]
	interval := s.deriveInterval(rec)
	if opts.IntervalSeconds != nil {
		interval = *opts.IntervalSeconds
	}
	if interval < s.minInterval {
		return Subscription{}, fmt.Errorf("subscription: interval must be at least %d seconds", s.minInterval)
	}
	rec.IntervalSeconds = interval
	rec.LegacyIntervalMinutes = 0
	if opts.IncludeReposts != nil {
		rec.IncludeReposts = *opts.IncludeReposts
	}
	if opts.IncludeQuotes != nil {
		rec.IncludeQuotes = *opts.IncludeQuotes
	}
	bucket[i] = rec
	if err := s.save(); err != nil {
		return Subscription{}, err
	}
	return s.toSubscription(channelID, rec), nil
}

// Remove deletes the subscription. Returns false when it did not exist.
func (s *Store) Remove(channelID int64, account string) (bool, error) {
	normalized, err := NormalizeAccount(account)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strconv.FormatInt(channelID, 10)
	bucket := s.data[key]
	i := findRecord(bucket, normalized)
	if i < 0 {
		return false, nil
	}
	bucket = append(bucket[:i], bucket[i+1:]...)
	if len(bucket) == 0 {
		delete(s.data, key)
	} else {
		s.data[key] = bucket
	}
	if err := s.save(); err != nil {
		return false, err
	}
	return true, nil
}

// List returns a snapshot of every subscription, ordered by channel then
// insertion order within the channel.
func (s *Store) List() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var result []Subscription
	for _, key := range keys {
		channelID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		for _, rec := range s.data[key] {
			if rec.Account == "" {
				continue
			}
			result = append(result, s.toSubscription(channelID, rec))
		}
	}
	return result
}

// ChannelSubscriptions returns a snapshot of one channel's subscriptions.
func (s *Store) ChannelSubscriptions(channelID int64) []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Subscription
	for _, rec := range s.data[strconv.FormatInt(channelID, 10)] {
		if rec.Account == "" {
			continue
		}
		result = append(result, s.toSubscription(channelID, rec))
	}
	return result
}

// LastSeen returns the persisted watermark for (channelID, account).
func (s *Store) LastSeen(channelID int64, account string) (string, bool) {
	normalized, err := NormalizeAccount(account)
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.data[strconv.FormatInt(channelID, 10)]
	if i := findRecord(bucket, normalized); i >= 0 && bucket[i].LastTweetID != "" {
		return bucket[i].LastTweetID, true
	}
	return "", false
}

// SetLastSeen durably advances the watermark for (channelID, account).
// A no-op when the subscription no longer exists.
func (s *Store) SetLastSeen(channelID int64, account, tweetID string) error {
	normalized, err := NormalizeAccount(account)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strconv.FormatInt(channelID, 10)
	bucket := s.data[key]
	i := findRecord(bucket, normalized)
	if i < 0 {
		return nil
	}
	bucket[i].LastTweetID = tweetID
	return s.save()
}
