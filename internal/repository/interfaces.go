// Package repository defines repository interfaces and their SQLite
// implementations. All timestamps are stored as RFC3339 TEXT. Lookup methods
// return (nil, nil) when no row matches; callers decide whether that is an
// error.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// LinkRepository defines methods for deduplicated URL rows.
type LinkRepository interface {
	// GetOrCreate inserts the link if its normalized URL is new and returns
	// the stored row either way. Safe under concurrent callers.
	GetOrCreate(ctx context.Context, link *models.Link) (*models.Link, bool, error)
	GetByID(ctx context.Context, id int64) (*models.Link, error)
	GetByNormalizedURL(ctx context.Context, normalizedURL string) (*models.Link, error)
	SetFinalURL(ctx context.Context, id int64, finalURL string) error
	TouchLastArchived(ctx context.Context, id int64, at time.Time) error
}

// ArchiveFilter narrows List results. Zero values mean "no constraint".
type ArchiveFilter struct {
	Status      models.ArchiveStatus
	ContentType models.ContentType
	Domain      string
	NSFW        *bool
	Limit       int
	Offset      int
}

// ArchiveWithLink pairs an archive with its link for list/search surfaces.
type ArchiveWithLink struct {
	Archive models.Archive `json:"archive"`
	Link    models.Link    `json:"link"`
}

// ArchiveStats is the aggregate snapshot served by the stats endpoint.
type ArchiveStats struct {
	Total              int64            `json:"total"`
	ByStatus           map[string]int64 `json:"by_status"`
	ByContentType      map[string]int64 `json:"by_content_type"`
	TotalArtifactBytes int64            `json:"total_artifact_bytes"`
	DuplicateArtifacts int64            `json:"duplicate_artifacts"`
	VideoFiles         int64            `json:"video_files"`
}

// ArchiveRepository defines methods for archive lifecycle management.
type ArchiveRepository interface {
	// EnsureForLink creates the pending archive for a link if none exists and
	// returns the stored row either way. Safe under concurrent callers. A
	// non-nil postDate is stored, backfilling an existing row without one.
	EnsureForLink(ctx context.Context, linkID int64, postDate *time.Time) (*models.Archive, bool, error)
	GetByID(ctx context.Context, id int64) (*models.Archive, error)
	GetByLinkID(ctx context.Context, linkID int64) (*models.Archive, error)

	// Claim transitions the archive to processing if it is currently due:
	// pending, or failed under the retry ceiling with no retry time or an
	// elapsed one. Returns (nil, nil) when another worker won the race or
	// the archive is not due.
	Claim(ctx context.Context, id int64, maxRetries int) (*models.Archive, error)
	// PickBatch returns ids of due archives, pending first, then failed rows
	// under the retry ceiling ordered by how overdue their retry is.
	PickBatch(ctx context.Context, limit, maxRetries int) ([]int64, error)

	MarkComplete(ctx context.Context, archive *models.Archive) error
	// MarkFailed records the failure and schedules the next retry with
	// exponential backoff, or parks the archive once retries are exhausted.
	MarkFailed(ctx context.Context, id int64, errMsg string, httpStatus int, maxRetries int, baseDelay time.Duration) error
	MarkAuthRequired(ctx context.Context, id int64, errMsg string, httpStatus int) error
	MarkSkipped(ctx context.Context, id int64, reason string) error
	SetThreadRefs(ctx context.Context, id int64, quotedArchiveID, replyToArchiveID *int64) error

	// ResetForRetry puts a non-processing archive back in rotation now.
	ResetForRetry(ctx context.Context, id int64) error
	// ResetForRearchive clears archive output and re-queues it. When
	// preserveMetadata is set the extracted title/author/text survive.
	ResetForRearchive(ctx context.Context, id int64, preserveMetadata bool) error
	// Delete removes the archive, its artifacts and jobs in one transaction.
	// Inbound duplicate references from other archives are nulled first.
	Delete(ctx context.Context, id int64) error

	// RecoverStuckProcessing returns archives abandoned mid-flight by a crash
	// to pending. Called once at startup before workers start.
	RecoverStuckProcessing(ctx context.Context) (int64, error)
	// ResetFailedSince re-queues failures under the retry ceiling attempted
	// or created at or after the cutoff, for crash recovery of same-day
	// failures.
	ResetFailedSince(ctx context.Context, cutoff time.Time, maxRetries int) (int64, error)

	List(ctx context.Context, filter ArchiveFilter) ([]*ArchiveWithLink, error)
	// Search runs an FTS match over title/author/text.
	Search(ctx context.Context, query string, limit, offset int) ([]*ArchiveWithLink, error)
	Stats(ctx context.Context) (*ArchiveStats, error)
}

// ArtifactRepository defines methods for stored archive files.
type ArtifactRepository interface {
	Create(ctx context.Context, artifact *models.Artifact) error
	GetByArchiveID(ctx context.Context, archiveID int64) ([]*models.Artifact, error)
	// FindOriginalBySHA256 returns the oldest non-duplicate artifact with this
	// content hash outside the given archive, or (nil, nil).
	FindOriginalBySHA256(ctx context.Context, sha256 string, excludeArchiveID int64) (*models.Artifact, error)
	// FindOriginalByPerceptualHash is the same lookup keyed on the image dHash.
	FindOriginalByPerceptualHash(ctx context.Context, phash string, excludeArchiveID int64) (*models.Artifact, error)
	// HasDuplicateRefs reports whether other artifacts reference this one as
	// their dedup original; its stored object must outlive the archive then.
	HasDuplicateRefs(ctx context.Context, artifactID int64) (bool, error)
}

// VideoFileRepository defines methods for the shared video payload index.
type VideoFileRepository interface {
	// GetOrCreate inserts the row if (platform, video_id) is new and returns
	// the stored row either way; created reports whether this call inserted
	// it and therefore owns the upload.
	GetOrCreate(ctx context.Context, vf *models.VideoFile) (*models.VideoFile, bool, error)
	GetByPlatformVideoID(ctx context.Context, platform, videoID string) (*models.VideoFile, error)
	// UpdateMetadata fills in fields learned after upload; empty/zero inputs
	// leave the stored value alone.
	UpdateMetadata(ctx context.Context, id int64, metadataS3Key, contentType string, sizeBytes int64, durationSeconds float64) error
	// Delete removes an index row whose upload never landed.
	Delete(ctx context.Context, id int64) error
}

// SubmissionRepository defines methods for user-submitted URLs.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	// CountByIPSince supports the per-IP rate limit window.
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error)
	// HasRecentURL reports whether the normalized URL was submitted inside
	// the dedup window.
	HasRecentURL(ctx context.Context, normalizedURL string, since time.Time) (bool, error)
	// ClaimPending atomically claims the oldest pending submission, or
	// returns (nil, nil) when the queue is empty.
	ClaimPending(ctx context.Context) (*models.Submission, error)
	MarkComplete(ctx context.Context, id string, linkID int64) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	// RecoverStuckProcessing returns submissions abandoned mid-ingest by a
	// crash to pending. Called once at startup.
	RecoverStuckProcessing(ctx context.Context) (int64, error)
}

// ArchiveJobRepository defines methods for per-archive sub-task bookkeeping.
type ArchiveJobRepository interface {
	Create(ctx context.Context, job *models.ArchiveJob) error
	Start(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, metadata string) error
	Fail(ctx context.Context, id string, errMsg string) error
	GetByArchiveID(ctx context.Context, archiveID int64) ([]*models.ArchiveJob, error)
}

// PostRepository defines methods for forum posts pulled from the feed.
type PostRepository interface {
	// Upsert stores a post by feed GUID. changed reports whether the content
	// hash differs from the stored row (new or edited post).
	Upsert(ctx context.Context, post *models.Post) (changed bool, err error)
	GetByGUID(ctx context.Context, guid string) (*models.Post, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	ListUnprocessed(ctx context.Context, limit int) ([]*models.Post, error)
}

// Repositories bundles every repository over one database handle.
type Repositories struct {
	Links       LinkRepository
	Archives    ArchiveRepository
	Artifacts   ArtifactRepository
	VideoFiles  VideoFileRepository
	Submissions SubmissionRepository
	ArchiveJobs ArchiveJobRepository
	Posts       PostRepository
}

// NewRepositories creates the SQLite implementations over db.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Links:       NewSQLiteLinkRepository(db),
		Archives:    NewSQLiteArchiveRepository(db),
		Artifacts:   NewSQLiteArtifactRepository(db),
		VideoFiles:  NewSQLiteVideoFileRepository(db),
		Submissions: NewSQLiteSubmissionRepository(db),
		ArchiveJobs: NewSQLiteArchiveJobRepository(db),
		Posts:       NewSQLitePostRepository(db),
	}
}
