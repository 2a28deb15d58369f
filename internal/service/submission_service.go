package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/XertroV/linkarchive/internal/config"
	"github.com/XertroV/linkarchive/internal/models"
	"github.com/XertroV/linkarchive/internal/repository"
	"github.com/XertroV/linkarchive/internal/urlnorm"
)

// ErrRateLimited is returned when an IP exceeds its hourly submission quota.
var ErrRateLimited = errors.New("submission rate limit exceeded")

// ErrDuplicateSubmission is returned when the same URL was already submitted
// inside the dedup window.
var ErrDuplicateSubmission = errors.New("url was recently submitted")

// SubmissionService accepts user-submitted URLs and feeds accepted ones into
// the archive pipeline from a background loop.
type SubmissionService struct {
	cfg      *config.Config
	repos    *repository.Repositories
	archives *ArchiveService
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSubmissionService creates the submission service.
func NewSubmissionService(cfg *config.Config, repos *repository.Repositories, archives *ArchiveService, logger *slog.Logger) *SubmissionService {
	return &SubmissionService{
		cfg:      cfg,
		repos:    repos,
		archives: archives,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Submit validates and records a submission. Excluded domains are stored as
// rejected so repeat offenders are visible; rate-limit and dedup violations
// are returned as errors without storing anything.
func (s *SubmissionService) Submit(ctx context.Context, rawURL, ip, userID string) (*models.Submission, error) {
	norm, err := urlnorm.Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	count, err := s.repos.Submissions.CountByIPSince(ctx, ip, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	if count >= s.cfg.SubmissionRateLimit {
		return nil, ErrRateLimited
	}

	recent, err := s.repos.Submissions.HasRecentURL(ctx, norm.NormalizedURL, now.Add(-s.cfg.SubmissionDedupeTTL))
	if err != nil {
		return nil, err
	}
	if recent {
		return nil, ErrDuplicateSubmission
	}

	sub := &models.Submission{
		ID:                ulid.Make().String(),
		URL:               rawURL,
		NormalizedURL:     norm.NormalizedURL,
		SubmittedByIP:     ip,
		SubmittedByUserID: userID,
		Status:            models.SubmissionStatusPending,
	}
	if s.cfg.DomainExcluded(norm.Domain) {
		sub.Status = models.SubmissionStatusRejected
		sub.ErrorMessage = fmt.Sprintf("domain %s is excluded", norm.Domain)
	}
	if err := s.repos.Submissions.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("submission received", "submission_id", sub.ID, "status", sub.Status, "domain", norm.Domain)
	return sub, nil
}

// GetSubmission returns a submission by id, or (nil, nil).
func (s *SubmissionService) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	return s.repos.Submissions.GetByID(ctx, id)
}

// Start launches the background ingest loop.
func (s *SubmissionService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.SubmissionPollPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.drain(ctx)
			}
		}
	}()
}

// Stop halts the ingest loop and waits for the in-flight submission.
func (s *SubmissionService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// drain processes pending submissions until the queue is empty.
func (s *SubmissionService) drain(ctx context.Context) {
	for {
		sub, err := s.repos.Submissions.ClaimPending(ctx)
		if err != nil {
			s.logger.Error("failed to claim submission", "error", err)
			return
		}
		if sub == nil {
			return
		}
		s.ingest(ctx, sub)
	}
}

func (s *SubmissionService) ingest(ctx context.Context, sub *models.Submission) {
	link, _, err := s.archives.EnsureArchive(ctx, sub.URL)
	if err != nil {
		s.logger.Warn("submission ingest failed", "submission_id", sub.ID, "error", err)
		if merr := s.repos.Submissions.MarkFailed(ctx, sub.ID, err.Error()); merr != nil {
			s.logger.Error("failed to mark submission failed", "submission_id", sub.ID, "error", merr)
		}
		return
	}
	if err := s.repos.Submissions.MarkComplete(ctx, sub.ID, link.ID); err != nil {
		s.logger.Error("failed to mark submission complete", "submission_id", sub.ID, "error", err)
	}
}
