package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/x2discord/x2d/internal/buildinfo"
	"github.com/x2discord/x2d/internal/config"
	"github.com/x2discord/x2d/internal/dedup"
	"github.com/x2discord/x2d/internal/deliverylog"
	"github.com/x2discord/x2d/internal/feed"
	"github.com/x2discord/x2d/internal/metrics"
	"github.com/x2discord/x2d/internal/notify"
	"github.com/x2discord/x2d/internal/poller"
	"github.com/x2discord/x2d/internal/subscription"
)

func main() {
	// 1. Load and validate environment config
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log.Printf("x2d %s (%s, built %s) starting",
		buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)
	startedAt := time.Now().UTC()

	// 2. Subscription store (file-backed, holds the watermarks too)
	subStore, err := subscription.NewStore(
		envCfg.SubscriptionsPath,
		envCfg.DefaultPollIntervalSeconds,
		envCfg.MinPollIntervalSeconds,
	)
	if err != nil {
		log.Fatalf("subscription store: %v", err)
	}

	// 3. Optional one-shot seed import
	if envCfg.SeedPath != "" {
		n, err := subscription.ImportSeed(subStore, envCfg.SeedPath)
		if err != nil {
			log.Fatalf("seed import: %v", err)
		}
		log.Printf("seed import: %d subscriptions from %s", n, envCfg.SeedPath)
	}

	// 4. Dedup store. An unreachable Redis degrades to watermark-only
	// duplicate protection; the process still runs.
	linkStore, err := dedup.NewRedisLinkStore(envCfg.RedisURL, dedup.DefaultMaxLinksPerChannel)
	if err != nil {
		log.Fatalf("dedup store: %v", err)
	}
	if err := linkStore.Connect(context.Background()); err != nil {
		log.Printf("warning: redis unavailable, dedup degraded: %v", err)
	}

	// 5. Watermark backend
	var marks poller.WatermarkStore = subStore
	if envCfg.WatermarkBackend == config.WatermarkBackendRedis {
		marks = dedup.NewRedisWatermarkStore(linkStore)
	}

	// 6. Delivery log (async writer + scheduled purge)
	logRepo := deliverylog.NewRepo(envCfg.DeliveryLogPath)
	if err := logRepo.Open(); err != nil {
		log.Fatalf("delivery log: %v", err)
	}
	logSvc := deliverylog.NewService(deliverylog.ServiceConfig{
		Repo:          logRepo,
		QueueSize:     envCfg.DeliveryLogQueueSize,
		FlushBatch:    envCfg.DeliveryLogFlushBatchSize,
		FlushInterval: envCfg.DeliveryLogFlushInterval,
	})
	logSvc.Start()

	retention := time.Duration(envCfg.DeliveryLogRetentionDays) * 24 * time.Hour
	purgeCron := cron.New()
	if _, err := purgeCron.AddFunc(envCfg.DeliveryLogPurgeSchedule, func() {
		logSvc.PurgeOlderThan(retention)
	}); err != nil {
		log.Fatalf("purge schedule: %v", err)
	}
	purgeCron.Start()

	// 7. Feed client, notifier, metrics, engine
	feedClient := feed.NewRSSHubClient(
		envCfg.RSSHubBaseURL,
		envCfg.RSSHubRefreshSeconds,
		func() time.Duration { return envCfg.FetchTimeout },
	)
	pollerMetrics := metrics.NewPoller()
	engine := poller.NewEngine(poller.Config{
		Notifier:   notify.NewDiscord(envCfg.DiscordBotToken),
		Subs:       subStore,
		Feed:       feedClient,
		Dedup:      linkStore,
		Watermarks: marks,
		Recorder:   logSvc,
		Metrics:    pollerMetrics,
	})
	engine.Start()
	log.Printf("poll engine started (%d subscriptions)", len(subStore.List()))

	// 8. Health endpoint
	healthSrv := newHealthServer(envCfg.HealthPort, startedAt, pollerMetrics)
	go func() {
		log.Printf("health endpoint on :%d", envCfg.HealthPort)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("health server error: %v", err)
		}
	}()

	// 9. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("received signal %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(ctx); err != nil {
		log.Printf("health server shutdown error: %v", err)
	}

	engine.Stop()
	purgeCron.Stop()
	logSvc.Stop()
	if err := logRepo.Close(); err != nil {
		log.Printf("delivery log close error: %v", err)
	}
	if err := linkStore.Close(); err != nil {
		log.Printf("dedup close error: %v", err)
	}
	log.Println("stopped")
}

type healthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	GitCommit string           `json:"git_commit"`
	StartedAt time.Time        `json:"started_at"`
	UptimeSec int64            `json:"uptime_seconds"`
	Metrics   map[string]int64 `json:"metrics"`
}

func newHealthServer(port int, startedAt time.Time, m *metrics.Poller) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "ok",
			Version:   buildinfo.Version,
			GitCommit: buildinfo.GitCommit,
			StartedAt: startedAt,
			UptimeSec: int64(time.Since(startedAt).Seconds()),
			Metrics:   m.Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("health response encode error: %v", err)
		}
	})
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
}
