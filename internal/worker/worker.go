// Package worker runs the archive processing pool: a dispatcher polls for
// due archives and a fixed set of workers processes them. Claiming is
// race-safe at the database layer, so running several replicas of the whole
// process is also fine.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/XertroV/linkarchive/internal/config"
	"github.com/XertroV/linkarchive/internal/service"
)

// Pool coordinates the dispatcher and worker goroutines.
type Pool struct {
	cfg      *config.Config
	archives *service.ArchiveService
	logger   *slog.Logger

	jobs   chan int64
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(cfg *config.Config, archives *service.ArchiveService, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		archives: archives,
		logger:   logger,
		jobs:     make(chan int64),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the dispatcher and workers.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.wg.Add(1)
	go p.dispatch(ctx)
	p.logger.Info("worker pool started",
		"workers", p.cfg.WorkerCount,
		"poll_interval", p.cfg.PollInterval,
		"batch_size", p.cfg.BatchSize,
	)
}

// Stop halts dispatching and waits for in-flight archives to finish.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) dispatch(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.jobs)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ids, err := p.archives.PickBatch(ctx, p.cfg.BatchSize)
		if err != nil {
			p.logger.Error("failed to pick archive batch", "error", err)
			continue
		}
		for _, id := range ids {
			select {
			case p.jobs <- id:
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	log := p.logger.With("worker", n)
	for id := range p.jobs {
		processed, err := p.archives.ProcessOne(ctx, id)
		if err != nil {
			log.Error("archive processing error", "archive_id", id, "error", err)
			continue
		}
		if !processed {
			// Lost the claim race or the archive became ineligible; normal.
			log.Debug("archive not claimed", "archive_id", id)
		}
	}
}
