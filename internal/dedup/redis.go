// Package dedup provides the persistent "already delivered" set. Keys are
// entry ids and links, namespaced per channel in Redis. Unavailability
// degrades to "not present / no-op" so delivery falls back to the watermark.
package dedup

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "x2discord"

	// DefaultMaxLinksPerChannel bounds each channel's dedup set. The bound
	// is a safety net, not a correctness guarantee.
	DefaultMaxLinksPerChannel = 1000

	// linkTTL refreshes on every write; dedup is not relied on beyond it.
	linkTTL = 30 * 24 * time.Hour

	opTimeout = 5 * time.Second
)

// Store is the membership set consulted before sending.
// Both methods report success via their return value; failures are treated
// as "not present" / "dropped" without error propagation.
type Store interface {
	Contains(ctx context.Context, channelID int64, key string) bool
	Add(ctx context.Context, channelID int64, key string) bool
}

// RedisLinkStore persists sent keys in a Redis SET per channel
// (x2discord:sent_links:<channel>) with a TTL and a size bound.
type RedisLinkStore struct {
	client   *redis.Client
	maxLinks int
	cache    *frontCache
}

// NewRedisLinkStore creates a store for the given redis:// URL. The
// connection is not established until Connect.
func NewRedisLinkStore(redisURL string, maxLinksPerChannel int) (*RedisLinkStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if maxLinksPerChannel <= 0 {
		maxLinksPerChannel = DefaultMaxLinksPerChannel
	}
	return &RedisLinkStore{
		client:   redis.NewClient(opts),
		maxLinks: maxLinksPerChannel,
		cache:    newFrontCache(maxLinksPerChannel * 4),
	}, nil
}

// Connect pings the server. On failure the store stays usable in degraded
// mode: Contains answers false and Add drops writes.
func (s *RedisLinkStore) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

// Close releases the connection.
func (s *RedisLinkStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Connected reports whether the remote is usable.
func (s *RedisLinkStore) Connected() bool {
	return s != nil && s.client != nil
}

func sentLinksKey(channelID int64) string {
	return keyPrefix + ":sent_links:" + strconv.FormatInt(channelID, 10)
}

// Contains reports membership of key in the channel's dedup set. Returns
// false when the remote is unavailable or the lookup fails.
func (s *RedisLinkStore) Contains(ctx context.Context, channelID int64, key string) bool {
	if !s.Connected() || key == "" {
		return false
	}
	if s.cache.has(channelID, key) {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	member, err := s.client.SIsMember(ctx, sentLinksKey(channelID), key).Result()
	if err != nil {
		log.Printf("[dedup] membership check failed for channel %d: %v", channelID, err)
		return false
	}
	if member {
		// Only positive answers are cached; absence must stay authoritative.
		s.cache.put(channelID, key)
	}
	return member
}

// Add inserts key into the channel's dedup set, refreshes the set TTL, and
// evicts arbitrary members above the size bound. Returns false when the
// write was dropped.
func (s *RedisLinkStore) Add(ctx context.Context, channelID int64, key string) bool {
	if !s.Connected() || key == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	setKey := sentLinksKey(channelID)
	if err := s.client.SAdd(ctx, setKey, key).Err(); err != nil {
		log.Printf("[dedup] add failed for channel %d: %v", channelID, err)
		return false
	}
	if err := s.client.Expire(ctx, setKey, linkTTL).Err(); err != nil {
		log.Printf("[dedup] ttl refresh failed for channel %d: %v", channelID, err)
	}

	size, err := s.client.SCard(ctx, setKey).Result()
	if err == nil && size > int64(s.maxLinks) {
		// Victims are arbitrary; the set has no order to respect.
		if err := s.client.SPopN(ctx, setKey, size-int64(s.maxLinks)).Err(); err != nil {
			log.Printf("[dedup] eviction failed for channel %d: %v", channelID, err)
		}
	}

	s.cache.put(channelID, key)
	return true
}

// ClearChannel drops the channel's whole dedup set.
func (s *RedisLinkStore) ClearChannel(ctx context.Context, channelID int64) bool {
	if !s.Connected() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.client.Del(ctx, sentLinksKey(channelID)).Err(); err != nil {
		log.Printf("[dedup] clear failed for channel %d: %v", channelID, err)
		return false
	}
	return true
}
