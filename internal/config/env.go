// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// WatermarkBackend selects where per-feed watermarks persist.
type WatermarkBackend string

const (
	WatermarkBackendFile  WatermarkBackend = "file"
	WatermarkBackendRedis WatermarkBackend = "redis"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Discord
	DiscordBotToken string

	// Feed producer
	RSSHubBaseURL        string
	RSSHubRefreshSeconds int
	FetchTimeout         time.Duration

	// Polling
	DefaultPollIntervalSeconds int
	MinPollIntervalSeconds     int

	// Storage
	SubscriptionsPath string
	SeedPath          string
	RedisURL          string
	WatermarkBackend  WatermarkBackend

	// Health
	HealthPort int

	// Delivery log
	DeliveryLogPath           string
	DeliveryLogQueueSize      int
	DeliveryLogFlushBatchSize int
	DeliveryLogFlushInterval  time.Duration
	DeliveryLogRetentionDays  int
	DeliveryLogPurgeSchedule  string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Discord ---
	cfg.DiscordBotToken = strings.TrimSpace(envStr("X2D_DISCORD_BOT_TOKEN", ""))

	// --- Feed producer ---
	cfg.RSSHubBaseURL = strings.TrimRight(strings.TrimSpace(envStr("X2D_RSSHUB_BASE_URL", "http://localhost:1200")), "/")
	cfg.RSSHubRefreshSeconds = envInt("X2D_RSSHUB_REFRESH_SECONDS", 0, &errs)
	cfg.FetchTimeout = envDuration("X2D_FETCH_TIMEOUT", 30*time.Second, &errs)

	// --- Polling ---
	cfg.DefaultPollIntervalSeconds = envInt("X2D_DEFAULT_POLL_INTERVAL_SECONDS", 60, &errs)
	cfg.MinPollIntervalSeconds = envInt("X2D_MIN_POLL_INTERVAL_SECONDS", 60, &errs)

	// --- Storage ---
	cfg.SubscriptionsPath = envStr("X2D_SUBSCRIPTIONS_PATH", "subscriptions.json")
	cfg.SeedPath = envStr("X2D_SEED_PATH", "")
	cfg.RedisURL = envStr("X2D_REDIS_URL", "redis://localhost:6379/0")
	cfg.WatermarkBackend = WatermarkBackend(envStr("X2D_WATERMARK_BACKEND", string(WatermarkBackendFile)))

	// --- Health ---
	cfg.HealthPort = envInt("X2D_HEALTH_PORT", 8000, &errs)

	// --- Delivery log ---
	cfg.DeliveryLogPath = envStr("X2D_DELIVERY_LOG_PATH", "deliveries.db")
	cfg.DeliveryLogQueueSize = envInt("X2D_DELIVERY_LOG_QUEUE_SIZE", 1024, &errs)
	cfg.DeliveryLogFlushBatchSize = envInt("X2D_DELIVERY_LOG_FLUSH_BATCH_SIZE", 256, &errs)
	cfg.DeliveryLogFlushInterval = envDuration("X2D_DELIVERY_LOG_FLUSH_INTERVAL", 30*time.Second, &errs)
	cfg.DeliveryLogRetentionDays = envInt("X2D_DELIVERY_LOG_RETENTION_DAYS", 30, &errs)
	cfg.DeliveryLogPurgeSchedule = envStr("X2D_DELIVERY_LOG_PURGE_SCHEDULE", "0 7 * * *")

	// --- Validation ---
	if cfg.DiscordBotToken == "" {
		errs = append(errs, "X2D_DISCORD_BOT_TOKEN must be set")
	}
	if cfg.RSSHubBaseURL == "" {
		errs = append(errs, "X2D_RSSHUB_BASE_URL must not be empty")
	}
	if cfg.RSSHubRefreshSeconds < 0 {
		errs = append(errs, fmt.Sprintf("X2D_RSSHUB_REFRESH_SECONDS: must not be negative, got %d", cfg.RSSHubRefreshSeconds))
	}
	if cfg.FetchTimeout <= 0 {
		errs = append(errs, "X2D_FETCH_TIMEOUT must be positive")
	}

	validatePositive("X2D_DEFAULT_POLL_INTERVAL_SECONDS", cfg.DefaultPollIntervalSeconds, &errs)
	validatePositive("X2D_MIN_POLL_INTERVAL_SECONDS", cfg.MinPollIntervalSeconds, &errs)
	if cfg.DefaultPollIntervalSeconds < cfg.MinPollIntervalSeconds {
		errs = append(errs, "X2D_DEFAULT_POLL_INTERVAL_SECONDS must be at least X2D_MIN_POLL_INTERVAL_SECONDS")
	}

	if cfg.SubscriptionsPath == "" {
		errs = append(errs, "X2D_SUBSCRIPTIONS_PATH must not be empty")
	}
	switch cfg.WatermarkBackend {
	case WatermarkBackendFile, WatermarkBackendRedis:
	default:
		errs = append(errs, fmt.Sprintf(
			"X2D_WATERMARK_BACKEND: invalid value %q (allowed: %s, %s)",
			cfg.WatermarkBackend, WatermarkBackendFile, WatermarkBackendRedis,
		))
	}

	validatePort("X2D_HEALTH_PORT", cfg.HealthPort, &errs)

	if cfg.DeliveryLogPath == "" {
		errs = append(errs, "X2D_DELIVERY_LOG_PATH must not be empty")
	}
	validatePositive("X2D_DELIVERY_LOG_QUEUE_SIZE", cfg.DeliveryLogQueueSize, &errs)
	validatePositive("X2D_DELIVERY_LOG_FLUSH_BATCH_SIZE", cfg.DeliveryLogFlushBatchSize, &errs)
	validatePositive("X2D_DELIVERY_LOG_RETENTION_DAYS", cfg.DeliveryLogRetentionDays, &errs)
	if cfg.DeliveryLogFlushInterval <= 0 {
		errs = append(errs, "X2D_DELIVERY_LOG_FLUSH_INTERVAL must be positive")
	}
	// Queue size must be >= 2x batch size
	if cfg.DeliveryLogQueueSize < 2*cfg.DeliveryLogFlushBatchSize {
		errs = append(errs, "X2D_DELIVERY_LOG_QUEUE_SIZE must be at least 2x X2D_DELIVERY_LOG_FLUSH_BATCH_SIZE")
	}
	if _, err := cron.ParseStandard(cfg.DeliveryLogPurgeSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("X2D_DELIVERY_LOG_PURGE_SCHEDULE: invalid cron expression %q: %v", cfg.DeliveryLogPurgeSchedule, err))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
