package dedup

import (
	"strconv"

	"github.com/maypok86/otter"
	"github.com/zeebo/xxh3"
)

// frontCache is a bounded in-process cache of known-present dedup keys.
// It short-circuits repeat membership checks without a Redis round trip.
// Keys are stored as xxh3 hashes of "<channel>|<key>" to keep the cache
// footprint independent of link length.
type frontCache struct {
	cache otter.Cache[uint64, struct{}]
}

func newFrontCache(maxEntries int) *frontCache {
	cache, err := otter.MustBuilder[uint64, struct{}](maxEntries).
		Cost(func(_ uint64, _ struct{}) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("dedup: failed to create front cache: " + err.Error())
	}
	return &frontCache{cache: cache}
}

func cacheKey(channelID int64, key string) uint64 {
	return xxh3.HashString(strconv.FormatInt(channelID, 10) + "|" + key)
}

func (c *frontCache) has(channelID int64, key string) bool {
	_, found := c.cache.Get(cacheKey(channelID, key))
	return found
}

func (c *frontCache) put(channelID int64, key string) {
	c.cache.Set(cacheKey(channelID, key), struct{}{})
}
