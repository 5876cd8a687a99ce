package subscription

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestImportSeed(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	seed := `subscriptions:
  - channel_id: 123
    account: "@foo"
    interval_seconds: 120
    include_reposts: true
    include_keywords: ["Release", "News"]
  - channel_id: 456
    account: bar
    thread_id: 789
`
	if err := os.WriteFile(seedPath, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s, err := NewStore(filepath.Join(dir, "subscriptions.json"), 60, 60)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	n, err := ImportSeed(s, seedPath)
	if err != nil {
		t.Fatalf("ImportSeed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported, got %d", n)
	}

	subs := s.List()
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}
	if subs[0].Account != "foo" || subs[0].IntervalSeconds != 120 || !subs[0].IncludeReposts {
		t.Fatalf("unexpected first subscription: %+v", subs[0])
	}
	if !reflect.DeepEqual(subs[0].IncludeKeywords, []string{"release", "news"}) {
		t.Fatalf("expected normalized keywords, got %v", subs[0].IncludeKeywords)
	}
	if subs[1].ChannelID != 456 || subs[1].ThreadID != 789 || subs[1].IntervalSeconds != 60 {
		t.Fatalf("unexpected second subscription: %+v", subs[1])
	}
}

func TestImportSeed_Invalid(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "subscriptions.json"), 60, 60)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if _, err := ImportSeed(s, filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("subscriptions:\n  - account: foo\n"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := ImportSeed(s, bad); err == nil {
		t.Fatal("expected error for missing channel_id")
	}
}
