// Package service contains the business logic tying repositories, handlers
// and the object store together.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/XertroV/linkarchive/internal/archiver"
	"github.com/XertroV/linkarchive/internal/config"
	"github.com/XertroV/linkarchive/internal/models"
	"github.com/XertroV/linkarchive/internal/repository"
	"github.com/XertroV/linkarchive/internal/urlnorm"
)

// ErrDomainExcluded is returned when a URL's domain is on the exclusion list.
var ErrDomainExcluded = errors.New("domain is excluded from archiving")

// ObjectStore is the slice of the storage client the executor needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PutFile(ctx context.Context, key, path, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ArchiveService drives the archive lifecycle: ensuring rows exist for URLs,
// processing due archives, and the operator actions (retry, rearchive,
// delete).
type ArchiveService struct {
	cfg      *config.Config
	repos    *repository.Repositories
	registry *archiver.Registry
	store    ObjectStore
	logger   *slog.Logger
}

// NewArchiveService creates the archive service.
func NewArchiveService(cfg *config.Config, repos *repository.Repositories, registry *archiver.Registry, store ObjectStore, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		cfg:      cfg,
		repos:    repos,
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// EnsureArchive normalizes the URL and guarantees a link row and a pending
// archive row exist for it. Calling it again with any spelling of the same
// URL returns the same rows.
func (s *ArchiveService) EnsureArchive(ctx context.Context, rawURL string) (*models.Link, *models.Archive, error) {
	return s.EnsureArchiveAt(ctx, rawURL, nil)
}

// EnsureArchiveAt additionally records when the forum post carrying the link
// was published. An archive discovered earlier without a post date picks the
// date up.
func (s *ArchiveService) EnsureArchiveAt(ctx context.Context, rawURL string, postDate *time.Time) (*models.Link, *models.Archive, error) {
	norm, err := urlnorm.Normalize(rawURL)
	if err != nil {
		return nil, nil, err
	}
	if s.cfg.DomainExcluded(norm.Domain) {
		return nil, nil, fmt.Errorf("%w: %s", ErrDomainExcluded, norm.Domain)
	}

	link, created, err := s.repos.Links.GetOrCreate(ctx, &models.Link{
		OriginalURL:   rawURL,
		NormalizedURL: norm.NormalizedURL,
		CanonicalURL:  norm.CanonicalURL,
		Domain:        norm.Domain,
	})
	if err != nil {
		return nil, nil, err
	}
	if created {
		s.logger.Info("new link", "link_id", link.ID, "domain", link.Domain, "url", link.NormalizedURL)
	}

	archive, _, err := s.repos.Archives.EnsureForLink(ctx, link.ID, postDate)
	if err != nil {
		return nil, nil, err
	}
	return link, archive, nil
}

// ProcessOne claims and processes a single archive. It returns false when
// the archive was not due or another worker claimed it first. The returned
// error reflects infrastructure failures only; handler failures are recorded
// on the archive row and return nil.
func (s *ArchiveService) ProcessOne(ctx context.Context, archiveID int64) (bool, error) {
	archive, err := s.repos.Archives.Claim(ctx, archiveID, s.cfg.MaxRetries)
	if err != nil {
		return false, err
	}
	if archive == nil {
		return false, nil
	}

	link, err := s.repos.Links.GetByID(ctx, archive.LinkID)
	if err != nil {
		return true, err
	}
	if link == nil {
		return true, fmt.Errorf("archive %d references missing link %d", archive.ID, archive.LinkID)
	}

	log := s.logger.With("archive_id", archive.ID, "url", link.NormalizedURL)

	fetchURL := link.CanonicalURL
	if fetchURL == "" {
		fetchURL = link.NormalizedURL
	}
	handler := s.registry.Find(fetchURL)
	if handler == nil {
		// Only reachable for non-http schemes that slipped past normalization.
		if err := s.repos.Archives.MarkSkipped(ctx, archive.ID, "no handler for url"); err != nil {
			return true, err
		}
		return true, nil
	}

	job := &models.ArchiveJob{
		ID:        ulid.Make().String(),
		ArchiveID: archive.ID,
		JobType:   "fetch:" + handler.SiteID(),
	}
	if err := s.repos.ArchiveJobs.Create(ctx, job); err != nil {
		return true, err
	}
	if err := s.repos.ArchiveJobs.Start(ctx, job.ID); err != nil {
		return true, err
	}

	workDir, err := os.MkdirTemp(s.cfg.WorkDir, fmt.Sprintf("archive-%d-", archive.ID))
	if err != nil {
		return true, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	result, handlerErr := s.invokeHandler(ctx, handler, fetchURL, workDir)
	if handlerErr != nil {
		return true, s.recordFailure(ctx, archive, job.ID, handler.SiteID(), handlerErr, log)
	}

	if err := s.persistResult(ctx, archive, link, result, log); err != nil {
		// Upload or DB trouble, not a content problem: schedule a retry.
		log.Error("failed to persist archive result", "error", err)
		if ferr := s.repos.ArchiveJobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
			return true, ferr
		}
		return true, s.repos.Archives.MarkFailed(ctx, archive.ID, err.Error(), 0,
			s.cfg.MaxRetries, s.cfg.RetryBaseDelay)
	}

	meta, _ := json.Marshal(map[string]any{"site": handler.SiteID(), "content_type": result.ContentType})
	if err := s.repos.ArchiveJobs.Complete(ctx, job.ID, string(meta)); err != nil {
		return true, err
	}
	log.Info("archive complete", "site", handler.SiteID(), "content_type", result.ContentType)
	return true, nil
}

// invokeHandler runs the handler with a panic guard. A panicking handler is
// a transient failure for its archive, not a dead worker goroutine.
func (s *ArchiveService) invokeHandler(ctx context.Context, handler archiver.Handler, fetchURL, workDir string) (result *archiver.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = archiver.Transient(fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()
	return handler.Archive(ctx, fetchURL, workDir, archiver.Options{
		CookieFile:   s.cfg.CookieFiles[handler.SiteID()],
		FetchTimeout: s.cfg.FetchTimeout,
	})
}

// recordFailure maps a handler error to exactly one status transition.
func (s *ArchiveService) recordFailure(ctx context.Context, archive *models.Archive, jobID, site string, handlerErr error, log *slog.Logger) error {
	kind, httpStatus := archiver.Classify(handlerErr)
	log.Warn("archive attempt failed", "site", site, "kind", kind, "error", handlerErr)

	if err := s.repos.ArchiveJobs.Fail(ctx, jobID, handlerErr.Error()); err != nil {
		return err
	}

	switch kind {
	case archiver.KindAuthRequired:
		return s.repos.Archives.MarkAuthRequired(ctx, archive.ID, handlerErr.Error(), httpStatus)
	case archiver.KindSkipped, archiver.KindInvalidInput:
		return s.repos.Archives.MarkSkipped(ctx, archive.ID, handlerErr.Error())
	default:
		return s.repos.Archives.MarkFailed(ctx, archive.ID, handlerErr.Error(), httpStatus,
			s.cfg.MaxRetries, s.cfg.RetryBaseDelay)
	}
}

// persistResult uploads the handler's files, writes artifact rows with dedup
// applied, and commits the terminal complete state.
func (s *ArchiveService) persistResult(ctx context.Context, archive *models.Archive, link *models.Link, result *archiver.Result, log *slog.Logger) error {
	var extraKeys []string

	persist := func(file *archiver.OutputFile) (*models.Artifact, error) {
		return s.persistFile(ctx, archive.ID, file, log)
	}

	var primary, thumb *models.Artifact
	var err error
	if result.PrimaryFile != nil {
		if primary, err = persist(result.PrimaryFile); err != nil {
			return err
		}
	}
	if result.ThumbFile != nil {
		if thumb, err = persist(result.ThumbFile); err != nil {
			return err
		}
	}
	for i := range result.ExtraFiles {
		artifact, err := persist(&result.ExtraFiles[i])
		if err != nil {
			return err
		}
		extraKeys = append(extraKeys, artifact.S3Key)
	}

	// A fresh archive has no content type yet; one carrying extracted
	// metadata into this attempt keeps it (rearchive with preservation).
	if archive.ContentType == "" {
		archive.ContentTitle = result.Title
		archive.ContentAuthor = result.Author
		archive.ContentText = result.Text
		archive.ContentType = result.ContentType
		archive.IsNSFW = result.IsNSFW
		archive.NSFWSource = result.NSFWSource
	}
	archive.HTTPStatusCode = result.HTTPStatus
	archive.WaybackURL = result.WaybackURL
	archive.ArchiveTodayURL = result.ArchiveTodayURL
	if primary != nil {
		archive.S3KeyPrimary = primary.S3Key
	}
	if thumb != nil {
		archive.S3KeyThumb = thumb.S3Key
	}
	if len(extraKeys) > 0 {
		data, err := json.Marshal(extraKeys)
		if err != nil {
			return fmt.Errorf("failed to marshal extra keys: %w", err)
		}
		archive.S3KeysExtra = string(data)
	}

	if err := s.resolveThreadRefs(ctx, archive, result); err != nil {
		return err
	}

	if err := s.repos.Archives.MarkComplete(ctx, archive); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.repos.Links.TouchLastArchived(ctx, link.ID, now); err != nil {
		return err
	}
	if result.FinalURL != "" && result.FinalURL != link.NormalizedURL {
		if err := s.repos.Links.SetFinalURL(ctx, link.ID, result.FinalURL); err != nil {
			return err
		}
	}
	return nil
}

// persistFile stores one output file, applying video-index, exact-hash and
// perceptual-hash dedup in that order. Only the first copy of any payload is
// uploaded; later copies become reference rows.
func (s *ArchiveService) persistFile(ctx context.Context, archiveID int64, file *archiver.OutputFile, log *slog.Logger) (*models.Artifact, error) {
	sha, size, err := hashFile(file.Path)
	if err != nil {
		return nil, err
	}

	artifact := &models.Artifact{
		ArchiveID:   archiveID,
		Kind:        file.Kind,
		ContentType: file.ContentType,
		SizeBytes:   size,
		SHA256:      sha,
	}

	// Shared video payloads are keyed by (platform, video_id); whichever
	// archive gets there first owns the upload.
	if file.Kind == models.ArtifactKindVideo && file.Platform != "" && file.VideoID != "" {
		vf, created, err := s.repos.VideoFiles.GetOrCreate(ctx, &models.VideoFile{
			Platform:    file.Platform,
			VideoID:     file.VideoID,
			S3Key:       fmt.Sprintf("video/%s/%s%s", file.Platform, file.VideoID, filepath.Ext(file.Path)),
			SizeBytes:   size,
			ContentType: file.ContentType,
		})
		if err != nil {
			return nil, err
		}
		if created {
			if err := s.store.PutFile(ctx, vf.S3Key, file.Path, file.ContentType); err != nil {
				// Roll the index row back so the next attempt re-uploads
				// instead of trusting a key that was never stored.
				if derr := s.repos.VideoFiles.Delete(ctx, vf.ID); derr != nil {
					log.Error("failed to roll back video file row", "video_file_id", vf.ID, "error", derr)
				}
				return nil, err
			}
			if err := s.repos.VideoFiles.UpdateMetadata(ctx, vf.ID, "", file.ContentType, size, 0); err != nil {
				return nil, err
			}
		} else {
			log.Info("video payload deduplicated", "platform", file.Platform, "video_id", file.VideoID)
		}
		artifact.S3Key = vf.S3Key
		artifact.VideoFileID = &vf.ID
		if err := s.repos.Artifacts.Create(ctx, artifact); err != nil {
			return nil, err
		}
		return artifact, nil
	}

	// Exact-content dedup applies to every kind.
	original, err := s.repos.Artifacts.FindOriginalBySHA256(ctx, sha, archiveID)
	if err != nil {
		return nil, err
	}

	// Near-duplicate images collapse via perceptual hash when the bytes
	// differ (recompression, resizing).
	if original == nil && isImageKind(file.Kind) {
		phash := file.PerceptualHash
		if phash == "" {
			if phash, err = archiver.PerceptualHash(file.Path); err != nil {
				// Undecodable images just skip perceptual dedup.
				log.Debug("perceptual hash failed", "path", file.Path, "error", err)
				phash = ""
			}
		}
		artifact.PerceptualHash = phash
		if phash != "" {
			if original, err = s.repos.Artifacts.FindOriginalByPerceptualHash(ctx, phash, archiveID); err != nil {
				return nil, err
			}
		}
	}

	if original != nil {
		artifact.S3Key = original.S3Key
		artifact.DuplicateOfArtifactID = &original.ID
		if artifact.PerceptualHash == "" {
			artifact.PerceptualHash = original.PerceptualHash
		}
		log.Info("artifact deduplicated", "kind", file.Kind, "original_artifact_id", original.ID)
		if err := s.repos.Artifacts.Create(ctx, artifact); err != nil {
			return nil, err
		}
		return artifact, nil
	}

	artifact.S3Key = fmt.Sprintf("archives/%d/%s/%s", archiveID, file.Kind, filepath.Base(file.Path))
	if err := s.store.PutFile(ctx, artifact.S3Key, file.Path, file.ContentType); err != nil {
		return nil, err
	}
	if err := s.repos.Artifacts.Create(ctx, artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// resolveThreadRefs ensures archives exist for quoted/replied-to URLs and
// links them. The referenced archives start pending and get processed by the
// normal rotation.
func (s *ArchiveService) resolveThreadRefs(ctx context.Context, archive *models.Archive, result *archiver.Result) error {
	var quotedID, replyToID *int64

	for _, ref := range []struct {
		rawURL string
		target **int64
	}{
		{result.QuotedURL, &quotedID},
		{result.ReplyToURL, &replyToID},
	} {
		if ref.rawURL == "" {
			continue
		}
		_, refArchive, err := s.EnsureArchive(ctx, ref.rawURL)
		if err != nil {
			// A bad or excluded reference is not worth failing the archive.
			s.logger.Warn("could not ensure referenced archive", "url", ref.rawURL, "error", err)
			continue
		}
		if refArchive.ID != archive.ID {
			*ref.target = &refArchive.ID
		}
	}

	if quotedID == nil && replyToID == nil {
		return nil
	}
	archive.QuotedArchiveID = quotedID
	archive.ReplyToArchiveID = replyToID
	return s.repos.Archives.SetThreadRefs(ctx, archive.ID, quotedID, replyToID)
}

// PickBatch returns ids of archives currently due for processing.
func (s *ArchiveService) PickBatch(ctx context.Context, limit int) ([]int64, error) {
	return s.repos.Archives.PickBatch(ctx, limit, s.cfg.MaxRetries)
}

// Retry puts a failed/auth_required/skipped archive back in rotation now.
func (s *ArchiveService) Retry(ctx context.Context, archiveID int64) error {
	return s.repos.Archives.ResetForRetry(ctx, archiveID)
}

// Rearchive clears an archive's outputs and re-queues it. Stored objects
// owned by the archive are removed; deduplicated and shared payloads stay.
func (s *ArchiveService) Rearchive(ctx context.Context, archiveID int64, preserveMetadata bool) error {
	if err := s.deleteOwnedObjects(ctx, archiveID); err != nil {
		return err
	}
	return s.repos.Archives.ResetForRearchive(ctx, archiveID, preserveMetadata)
}

// Delete removes the archive, its rows and its owned stored objects.
func (s *ArchiveService) Delete(ctx context.Context, archiveID int64) error {
	if err := s.deleteOwnedObjects(ctx, archiveID); err != nil {
		return err
	}
	return s.repos.Archives.Delete(ctx, archiveID)
}

// deleteOwnedObjects removes stored objects this archive uploaded itself.
// Duplicate rows never own their object and shared video payloads outlive
// any single archive; objects still referenced as dedup originals by other
// archives are kept too.
func (s *ArchiveService) deleteOwnedObjects(ctx context.Context, archiveID int64) error {
	artifacts, err := s.repos.Artifacts.GetByArchiveID(ctx, archiveID)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		if a.DuplicateOfArtifactID != nil || a.VideoFileID != nil {
			continue
		}
		referenced, err := s.repos.Artifacts.HasDuplicateRefs(ctx, a.ID)
		if err != nil {
			return err
		}
		if referenced {
			continue
		}
		if err := s.store.Delete(ctx, a.S3Key); err != nil {
			return err
		}
	}
	return nil
}

// GetArchive returns an archive with its link, or (nil, nil).
func (s *ArchiveService) GetArchive(ctx context.Context, archiveID int64) (*repository.ArchiveWithLink, error) {
	archive, err := s.repos.Archives.GetByID(ctx, archiveID)
	if err != nil || archive == nil {
		return nil, err
	}
	link, err := s.repos.Links.GetByID(ctx, archive.LinkID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, fmt.Errorf("archive %d references missing link %d", archive.ID, archive.LinkID)
	}
	return &repository.ArchiveWithLink{Archive: *archive, Link: *link}, nil
}

// List returns archives matching the filter, newest first.
func (s *ArchiveService) List(ctx context.Context, filter repository.ArchiveFilter) ([]*repository.ArchiveWithLink, error) {
	return s.repos.Archives.List(ctx, filter)
}

// Search runs a full-text query over archived titles, authors and text.
func (s *ArchiveService) Search(ctx context.Context, query string, limit, offset int) ([]*repository.ArchiveWithLink, error) {
	return s.repos.Archives.Search(ctx, query, limit, offset)
}

// Stats returns the aggregate pipeline snapshot.
func (s *ArchiveService) Stats(ctx context.Context) (*repository.ArchiveStats, error) {
	return s.repos.Archives.Stats(ctx)
}

// isImageKind reports whether perceptual dedup applies to this kind.
func isImageKind(kind models.ArtifactKind) bool {
	switch kind {
	case models.ArtifactKindImage, models.ArtifactKindScreenshot, models.ArtifactKindThumb:
		return true
	}
	return false
}

// hashFile computes the sha256 and size of a file without loading it whole.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
