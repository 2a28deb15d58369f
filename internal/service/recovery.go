package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/XertroV/linkarchive/internal/config"
	"github.com/XertroV/linkarchive/internal/repository"
)

// RunRecovery repairs pipeline state after an unclean shutdown. It runs once
// at startup, after migrations and before any worker starts:
//
//  1. archives stuck in processing go back to pending (their owner is gone)
//  2. submissions stuck in processing go back to pending likewise
//  3. optionally, failures attempted since local midnight re-enter rotation,
//     on the theory that a crash mid-day probably caused them
func RunRecovery(ctx context.Context, cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) error {
	recovered, err := repos.Archives.RecoverStuckProcessing(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		logger.Warn("recovered archives stuck in processing", "count", recovered)
	}

	recoveredSubs, err := repos.Submissions.RecoverStuckProcessing(ctx)
	if err != nil {
		return err
	}
	if recoveredSubs > 0 {
		logger.Warn("recovered submissions stuck in processing", "count", recoveredSubs)
	}

	if cfg.RecoverTodaysFailures {
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		reset, err := repos.Archives.ResetFailedSince(ctx, midnight, cfg.MaxRetries)
		if err != nil {
			return err
		}
		if reset > 0 {
			logger.Info("re-queued today's failed archives", "count", reset)
		}
	}
	return nil
}
