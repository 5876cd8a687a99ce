package subscription

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedDocument is the YAML layout accepted by ImportSeed.
type seedDocument struct {
	Subscriptions []seedEntry `yaml:"subscriptions"`
}

type seedEntry struct {
	ChannelID       int64    `yaml:"channel_id"`
	Account         string   `yaml:"account"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	IncludeReposts  bool     `yaml:"include_reposts"`
	IncludeQuotes   bool     `yaml:"include_quotes"`
	IncludeKeywords []string `yaml:"include_keywords"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
	ThreadID        int64    `yaml:"thread_id"`
}

// ImportSeed loads a YAML seed file and upserts each entry into the store.
// Existing subscriptions are updated in place and keep their watermark.
// Returns the number of entries imported.
func ImportSeed(s *Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("subscription: read seed %s: %w", path, err)
	}
	var doc seedDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("subscription: parse seed %s: %w", path, err)
	}

	imported := 0
	for i, entry := range doc.Subscriptions {
		if entry.ChannelID == 0 {
			return imported, fmt.Errorf("subscription: seed entry %d: channel_id required", i)
		}
		_, err := s.Add(entry.ChannelID, entry.Account, AddOptions{
			IntervalSeconds: entry.IntervalSeconds,
			IncludeReposts:  entry.IncludeReposts,
			IncludeQuotes:   entry.IncludeQuotes,
			IncludeKeywords: entry.IncludeKeywords,
			ExcludeKeywords: entry.ExcludeKeywords,
			ThreadID:        entry.ThreadID,
		})
		if err != nil {
			return imported, fmt.Errorf("subscription: seed entry %d (%s): %w", i, entry.Account, err)
		}
		imported++
	}
	return imported, nil
}
