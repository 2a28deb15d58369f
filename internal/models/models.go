// Package models defines the domain models for the archive pipeline.
// Links, archives, artifacts and video files use integer ids assigned by the
// database; submissions, posts and archive jobs use ULIDs.
package models

import (
	"time"
)

// ArchiveStatus represents the lifecycle state of an archive.
type ArchiveStatus string

const (
	ArchiveStatusPending      ArchiveStatus = "pending"
	ArchiveStatusProcessing   ArchiveStatus = "processing"
	ArchiveStatusComplete     ArchiveStatus = "complete"
	ArchiveStatusFailed       ArchiveStatus = "failed"
	ArchiveStatusAuthRequired ArchiveStatus = "auth_required"
	ArchiveStatusSkipped      ArchiveStatus = "skipped"
)

// ContentType classifies what an archive preserved.
type ContentType string

const (
	ContentTypeVideo    ContentType = "video"
	ContentTypeImage    ContentType = "image"
	ContentTypeText     ContentType = "text"
	ContentTypeGallery  ContentType = "gallery"
	ContentTypeThread   ContentType = "thread"
	ContentTypePlaylist ContentType = "playlist"
	ContentTypeAudio    ContentType = "audio"
	ContentTypePDF      ContentType = "pdf"
	ContentTypeMixed    ContentType = "mixed"
)

// NSFWSource records how an archive was flagged NSFW.
type NSFWSource string

const (
	NSFWSourceDetected NSFWSource = "detected"
	NSFWSourceManual   NSFWSource = "manual"
	NSFWSourcePlatform NSFWSource = "platform"
)

// ArtifactKind identifies the role of a stored file within an archive.
type ArtifactKind string

const (
	ArtifactKindRawHTML    ArtifactKind = "raw_html"
	ArtifactKindScreenshot ArtifactKind = "screenshot"
	ArtifactKindPDF        ArtifactKind = "pdf"
	ArtifactKindVideo      ArtifactKind = "video"
	ArtifactKindThumb      ArtifactKind = "thumb"
	ArtifactKindMetadata   ArtifactKind = "metadata"
	ArtifactKindImage      ArtifactKind = "image"
	ArtifactKindSubtitles  ArtifactKind = "subtitles"
	ArtifactKindTranscript ArtifactKind = "transcript"
	ArtifactKindComments   ArtifactKind = "comments"
)

// SubmissionStatus represents the state of a user-submitted URL.
type SubmissionStatus string

const (
	SubmissionStatusPending    SubmissionStatus = "pending"
	SubmissionStatusProcessing SubmissionStatus = "processing"
	SubmissionStatusComplete   SubmissionStatus = "complete"
	SubmissionStatusFailed     SubmissionStatus = "failed"
	SubmissionStatusRejected   SubmissionStatus = "rejected"
)

// ArchiveJobStatus represents the state of a sub-task within an archive.
type ArchiveJobStatus string

const (
	ArchiveJobStatusPending   ArchiveJobStatus = "pending"
	ArchiveJobStatusRunning   ArchiveJobStatus = "running"
	ArchiveJobStatusCompleted ArchiveJobStatus = "completed"
	ArchiveJobStatusFailed    ArchiveJobStatus = "failed"
	ArchiveJobStatusSkipped   ArchiveJobStatus = "skipped"
)

// Link is a deduplicated URL, keyed by its normalized form.
type Link struct {
	ID             int64      `json:"id"`
	OriginalURL    string     `json:"original_url"`
	NormalizedURL  string     `json:"normalized_url"`
	CanonicalURL   string     `json:"canonical_url,omitempty"`
	FinalURL       string     `json:"final_url,omitempty"` // after redirect resolution
	Domain         string     `json:"domain"`
	FirstSeenAt    time.Time  `json:"first_seen_at"`
	LastArchivedAt *time.Time `json:"last_archived_at,omitempty"`
}

// Archive is the attempt (successful or not) to preserve one link's content.
// At most one archive exists per link.
type Archive struct {
	ID         int64         `json:"id"`
	LinkID     int64         `json:"link_id"`
	Status     ArchiveStatus `json:"status"`
	ArchivedAt *time.Time    `json:"archived_at,omitempty"`

	ContentTitle  string      `json:"content_title,omitempty"`
	ContentAuthor string      `json:"content_author,omitempty"`
	ContentText   string      `json:"content_text,omitempty"`
	ContentType   ContentType `json:"content_type,omitempty"`

	S3KeyPrimary    string `json:"s3_key_primary,omitempty"`
	S3KeyThumb      string `json:"s3_key_thumb,omitempty"`
	S3KeysExtra     string `json:"s3_keys_extra,omitempty"` // JSON array of keys
	WaybackURL      string `json:"wayback_url,omitempty"`
	ArchiveTodayURL string `json:"archive_today_url,omitempty"`
	IPFSCid         string `json:"ipfs_cid,omitempty"`

	IsNSFW     bool       `json:"is_nsfw"`
	NSFWSource NSFWSource `json:"nsfw_source,omitempty"`

	ErrorMessage   string     `json:"error_message,omitempty"`
	RetryCount     int        `json:"retry_count"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	LastAttemptAt  *time.Time `json:"last_attempt_at,omitempty"`
	HTTPStatusCode int        `json:"http_status_code,omitempty"`

	PostDate         *time.Time `json:"post_date,omitempty"`
	QuotedArchiveID  *int64     `json:"quoted_archive_id,omitempty"`
	ReplyToArchiveID *int64     `json:"reply_to_archive_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsTerminal reports whether the archive is in a state the pipeline will not
// touch again without operator intervention.
func (a *Archive) IsTerminal() bool {
	switch a.Status {
	case ArchiveStatusComplete, ArchiveStatusAuthRequired, ArchiveStatusSkipped:
		return true
	case ArchiveStatusFailed:
		return a.NextRetryAt == nil
	}
	return false
}

// Artifact is one stored file belonging to one archive.
type Artifact struct {
	ID                    int64        `json:"id"`
	ArchiveID             int64        `json:"archive_id"`
	Kind                  ArtifactKind `json:"kind"`
	S3Key                 string       `json:"s3_key"`
	ContentType           string       `json:"content_type,omitempty"`
	SizeBytes             int64        `json:"size_bytes,omitempty"`
	SHA256                string       `json:"sha256,omitempty"`          // hex lowercase
	PerceptualHash        string       `json:"perceptual_hash,omitempty"` // hex 64-bit dHash
	DuplicateOfArtifactID *int64       `json:"duplicate_of_artifact_id,omitempty"`
	VideoFileID           *int64       `json:"video_file_id,omitempty"`
	Metadata              string       `json:"metadata,omitempty"` // JSON
	CreatedAt             time.Time    `json:"created_at"`
}

// VideoFile is a downloaded media payload shared across archives that all
// reference the same platform video. Unique on (platform, video_id).
type VideoFile struct {
	ID              int64     `json:"id"`
	Platform        string    `json:"platform"`
	VideoID         string    `json:"video_id"`
	S3Key           string    `json:"s3_key"`
	MetadataS3Key   string    `json:"metadata_s3_key,omitempty"`
	SizeBytes       int64     `json:"size_bytes,omitempty"`
	ContentType     string    `json:"content_type,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Submission is a user-initiated URL pending ingestion.
type Submission struct {
	ID                string           `json:"id"`
	URL               string           `json:"url"`
	NormalizedURL     string           `json:"normalized_url"`
	SubmittedByIP     string           `json:"submitted_by_ip"`
	SubmittedByUserID string           `json:"submitted_by_user_id,omitempty"`
	Status            SubmissionStatus `json:"status"`
	LinkID            *int64           `json:"link_id,omitempty"`
	ErrorMessage      string           `json:"error_message,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
}

// ArchiveJob records one sub-task of a multi-step archive pipeline
// (e.g. comment extraction, transcription).
type ArchiveJob struct {
	ID           string           `json:"id"`
	ArchiveID    int64            `json:"archive_id"`
	JobType      string           `json:"job_type"`
	Status       ArchiveJobStatus `json:"status"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Metadata     string           `json:"metadata,omitempty"` // JSON
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// DurationSeconds returns the job duration, or 0 if it has not finished.
func (j *ArchiveJob) DurationSeconds() float64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt).Seconds()
}

// Post is a forum post pulled from the RSS feed. Outbound links found in the
// post body become Link rows.
type Post struct {
	ID           string     `json:"id"`
	GUID         string     `json:"guid"`
	DiscourseURL string     `json:"discourse_url"`
	Author       string     `json:"author,omitempty"`
	Title        string     `json:"title,omitempty"`
	BodyHTML     string     `json:"body_html,omitempty"`
	ContentHash  string     `json:"content_hash,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
