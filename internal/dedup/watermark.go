package dedup

import (
	"context"
	"log"
	"strconv"
)

// RedisWatermarkStore keeps per-(channel, account) watermarks as string keys
// (x2discord:last_tweet:<channel>:<account>). Alternative to co-locating the
// watermark in the subscriptions file; selected by configuration.
type RedisWatermarkStore struct {
	links *RedisLinkStore
}

// NewRedisWatermarkStore shares the link store's connection.
func NewRedisWatermarkStore(links *RedisLinkStore) *RedisWatermarkStore {
	return &RedisWatermarkStore{links: links}
}

func lastTweetKey(channelID int64, account string) string {
	return keyPrefix + ":last_tweet:" + strconv.FormatInt(channelID, 10) + ":" + account
}

// LastSeen returns the stored watermark, or absent when unset or the remote
// is unavailable.
func (s *RedisWatermarkStore) LastSeen(channelID int64, account string) (string, bool) {
	if !s.links.Connected() {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	value, err := s.links.client.Get(ctx, lastTweetKey(channelID, account)).Result()
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

// SetLastSeen durably advances the watermark. Failures are logged; the
// caller's in-memory watermark still advances.
func (s *RedisWatermarkStore) SetLastSeen(channelID int64, account, entryID string) error {
	if !s.links.Connected() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.links.client.Set(ctx, lastTweetKey(channelID, account), entryID, 0).Err(); err != nil {
		log.Printf("[dedup] watermark write failed for %s in channel %d: %v", account, channelID, err)
		return err
	}
	return nil
}
