package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// SQLiteVideoFileRepository implements VideoFileRepository for SQLite.
type SQLiteVideoFileRepository struct {
	db *sql.DB
}

// NewSQLiteVideoFileRepository creates a new SQLite video file repository.
func NewSQLiteVideoFileRepository(db *sql.DB) *SQLiteVideoFileRepository {
	return &SQLiteVideoFileRepository{db: db}
}

const videoFileColumns = `id, platform, video_id, s3_key, metadata_s3_key, size_bytes,
	content_type, duration_seconds, created_at`

// GetOrCreate makes (platform, video_id) first-writer-wins: the INSERT OR
// IGNORE either lands or silently loses to an existing row, and the follow-up
// SELECT returns whichever row won. created tells the caller whether the
// upload is theirs to do.
func (r *SQLiteVideoFileRepository) GetOrCreate(ctx context.Context, vf *models.VideoFile) (*models.VideoFile, bool, error) {
	if vf.CreatedAt.IsZero() {
		vf.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO video_files (platform, video_id, s3_key, metadata_s3_key,
			size_bytes, content_type, duration_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		vf.Platform,
		vf.VideoID,
		vf.S3Key,
		nullString(vf.MetadataS3Key),
		vf.SizeBytes,
		nullString(vf.ContentType),
		vf.DurationSeconds,
		vf.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert video file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	stored, err := r.GetByPlatformVideoID(ctx, vf.Platform, vf.VideoID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("video file vanished after insert: %s/%s", vf.Platform, vf.VideoID)
	}
	return stored, affected > 0, nil
}

func (r *SQLiteVideoFileRepository) GetByPlatformVideoID(ctx context.Context, platform, videoID string) (*models.VideoFile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+videoFileColumns+` FROM video_files WHERE platform = ? AND video_id = ?`,
		platform, videoID)
	return scanVideoFile(row)
}

func (r *SQLiteVideoFileRepository) UpdateMetadata(ctx context.Context, id int64, metadataS3Key, contentType string, sizeBytes int64, durationSeconds float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE video_files SET
			metadata_s3_key = coalesce(nullif(?, ''), metadata_s3_key),
			content_type = coalesce(nullif(?, ''), content_type),
			size_bytes = coalesce(nullif(?, 0), size_bytes),
			duration_seconds = coalesce(nullif(?, 0.0), duration_seconds)
		WHERE id = ?`,
		metadataS3Key, contentType, sizeBytes, durationSeconds, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update video file: %w", err)
	}
	return nil
}

func (r *SQLiteVideoFileRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM video_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video file: %w", err)
	}
	return nil
}

func scanVideoFile(row rowScanner) (*models.VideoFile, error) {
	var (
		vf            models.VideoFile
		metadataS3Key sql.NullString
		sizeBytes     sql.NullInt64
		contentType   sql.NullString
		duration      sql.NullFloat64
		createdAt     string
	)
	err := row.Scan(
		&vf.ID, &vf.Platform, &vf.VideoID, &vf.S3Key,
		&metadataS3Key, &sizeBytes, &contentType, &duration, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan video file: %w", err)
	}
	vf.MetadataS3Key = metadataS3Key.String
	vf.SizeBytes = sizeBytes.Int64
	vf.ContentType = contentType.String
	vf.DurationSeconds = duration.Float64
	vf.CreatedAt = parseTime(createdAt)
	return &vf, nil
}
