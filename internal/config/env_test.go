package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("X2D_DISCORD_BOT_TOKEN", "bot-token")
}

func TestLoadEnvConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RSSHubBaseURL != "http://localhost:1200" {
		t.Fatalf("unexpected base url %q", cfg.RSSHubBaseURL)
	}
	if cfg.DefaultPollIntervalSeconds != 60 || cfg.MinPollIntervalSeconds != 60 {
		t.Fatalf("unexpected intervals %d/%d", cfg.DefaultPollIntervalSeconds, cfg.MinPollIntervalSeconds)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Fatalf("unexpected fetch timeout %v", cfg.FetchTimeout)
	}
	if cfg.WatermarkBackend != WatermarkBackendFile {
		t.Fatalf("unexpected watermark backend %q", cfg.WatermarkBackend)
	}
	if cfg.HealthPort != 8000 {
		t.Fatalf("unexpected health port %d", cfg.HealthPort)
	}
	if cfg.DeliveryLogQueueSize != 1024 || cfg.DeliveryLogFlushBatchSize != 256 {
		t.Fatalf("unexpected delivery log queue %d/%d", cfg.DeliveryLogQueueSize, cfg.DeliveryLogFlushBatchSize)
	}
	if cfg.DeliveryLogPurgeSchedule != "0 7 * * *" {
		t.Fatalf("unexpected purge schedule %q", cfg.DeliveryLogPurgeSchedule)
	}
}

func TestLoadEnvConfig_MissingToken(t *testing.T) {
	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error without bot token")
	}
	if !strings.Contains(err.Error(), "X2D_DISCORD_BOT_TOKEN") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadEnvConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("X2D_RSSHUB_BASE_URL", "http://rsshub.internal:1200/")
	t.Setenv("X2D_RSSHUB_REFRESH_SECONDS", "300")
	t.Setenv("X2D_DEFAULT_POLL_INTERVAL_SECONDS", "120")
	t.Setenv("X2D_WATERMARK_BACKEND", "redis")
	t.Setenv("X2D_FETCH_TIMEOUT", "10s")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RSSHubBaseURL != "http://rsshub.internal:1200" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.RSSHubBaseURL)
	}
	if cfg.RSSHubRefreshSeconds != 300 {
		t.Fatalf("unexpected refresh seconds %d", cfg.RSSHubRefreshSeconds)
	}
	if cfg.DefaultPollIntervalSeconds != 120 {
		t.Fatalf("unexpected default interval %d", cfg.DefaultPollIntervalSeconds)
	}
	if cfg.WatermarkBackend != WatermarkBackendRedis {
		t.Fatalf("unexpected backend %q", cfg.WatermarkBackend)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Fatalf("unexpected fetch timeout %v", cfg.FetchTimeout)
	}
}

func TestLoadEnvConfig_CollectsAllErrors(t *testing.T) {
	t.Setenv("X2D_DEFAULT_POLL_INTERVAL_SECONDS", "abc")
	t.Setenv("X2D_HEALTH_PORT", "70000")
	t.Setenv("X2D_WATERMARK_BACKEND", "memory")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{
		"X2D_DISCORD_BOT_TOKEN",
		"X2D_DEFAULT_POLL_INTERVAL_SECONDS",
		"X2D_HEALTH_PORT",
		"X2D_WATERMARK_BACKEND",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got: %v", want, err)
		}
	}
}

func TestLoadEnvConfig_QueueBatchRatio(t *testing.T) {
	setRequired(t)
	t.Setenv("X2D_DELIVERY_LOG_QUEUE_SIZE", "100")
	t.Setenv("X2D_DELIVERY_LOG_FLUSH_BATCH_SIZE", "80")

	_, err := LoadEnvConfig()
	if err == nil || !strings.Contains(err.Error(), "at least 2x") {
		t.Fatalf("expected queue/batch ratio error, got: %v", err)
	}
}

func TestLoadEnvConfig_DefaultBelowMin(t *testing.T) {
	setRequired(t)
	t.Setenv("X2D_DEFAULT_POLL_INTERVAL_SECONDS", "30")
	t.Setenv("X2D_MIN_POLL_INTERVAL_SECONDS", "60")

	_, err := LoadEnvConfig()
	if err == nil || !strings.Contains(err.Error(), "X2D_DEFAULT_POLL_INTERVAL_SECONDS") {
		t.Fatalf("expected interval floor error, got: %v", err)
	}
}

func TestLoadEnvConfig_InvalidPurgeSchedule(t *testing.T) {
	setRequired(t)
	t.Setenv("X2D_DELIVERY_LOG_PURGE_SCHEDULE", "not a cron")

	_, err := LoadEnvConfig()
	if err == nil || !strings.Contains(err.Error(), "X2D_DELIVERY_LOG_PURGE_SCHEDULE") {
		t.Fatalf("expected cron error, got: %v", err)
	}
}
