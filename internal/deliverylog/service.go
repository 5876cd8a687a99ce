package deliverylog

import (
	"log"
	"sync"
	"time"

	"github.com/x2discord/x2d/internal/poller"
)

// Service provides an async delivery log writer.
// EmitDelivery performs a non-blocking channel send (drops on overflow).
// A background goroutine flushes batches to the Repo.
type Service struct {
	repo      *Repo
	queue     chan poller.DeliveryRecord
	batchSize int
	interval  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ServiceConfig configures the delivery log service.
type ServiceConfig struct {
	Repo          *Repo
	QueueSize     int
	FlushBatch    int
	FlushInterval time.Duration
}

// NewService creates a new delivery log service.
func NewService(cfg ServiceConfig) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	batchSize := cfg.FlushBatch
	if batchSize <= 0 {
		batchSize = 256
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Service{
		repo:      cfg.Repo,
		queue:     make(chan poller.DeliveryRecord, queueSize),
		batchSize: batchSize,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background flush goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop signals the flush loop to stop, drains remaining records, and returns.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// EmitDelivery enqueues a delivery record. Non-blocking; drops on overflow.
func (s *Service) EmitDelivery(rec poller.DeliveryRecord) {
	select {
	case s.queue <- rec:
	default:
		// Queue full — drop the record rather than stall the poll loop.
	}
}

// PurgeOlderThan removes records older than the retention window.
func (s *Service) PurgeOlderThan(retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	n, err := s.repo.DeleteOlderThan(cutoff)
	if err != nil {
		log.Printf("[deliverylog] purge failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[deliverylog] purged %d records older than %s", n, retention)
	}
}

// flushLoop runs until stopCh is closed, flushing on batch-size or timer.
func (s *Service) flushLoop() {
	defer s.wg.Done()

	batch := make([]poller.DeliveryRecord, 0, s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-s.stopCh:
			// Drain remaining.
			s.drainAndFlush(batch)
			return
		}
	}
}

func (s *Service) drainAndFlush(batch []poller.DeliveryRecord) {
	for {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *Service) flush(records []poller.DeliveryRecord) {
	if n, err := s.repo.InsertBatch(records); err != nil {
		log.Printf("[deliverylog] flush %d records failed: %v", len(records), err)
	} else if n > 0 {
		log.Printf("[deliverylog] flushed %d records", n)
	}
}

// Repo returns the underlying repository for query access.
func (s *Service) Repo() *Repo {
	return s.repo
}
