package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// SQLiteArtifactRepository implements ArtifactRepository for SQLite.
type SQLiteArtifactRepository struct {
	db *sql.DB
}

// NewSQLiteArtifactRepository creates a new SQLite artifact repository.
func NewSQLiteArtifactRepository(db *sql.DB) *SQLiteArtifactRepository {
	return &SQLiteArtifactRepository{db: db}
}

const artifactColumns = `id, archive_id, kind, s3_key, content_type, size_bytes, sha256,
	perceptual_hash, duplicate_of_artifact_id, video_file_id, metadata, created_at`

func (r *SQLiteArtifactRepository) Create(ctx context.Context, artifact *models.Artifact) error {
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO archive_artifacts (archive_id, kind, s3_key, content_type, size_bytes,
			sha256, perceptual_hash, duplicate_of_artifact_id, video_file_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		artifact.ArchiveID,
		string(artifact.Kind),
		artifact.S3Key,
		nullString(artifact.ContentType),
		artifact.SizeBytes,
		nullString(artifact.SHA256),
		nullString(artifact.PerceptualHash),
		nullInt64Ptr(artifact.DuplicateOfArtifactID),
		nullInt64Ptr(artifact.VideoFileID),
		nullString(artifact.Metadata),
		artifact.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get artifact id: %w", err)
	}
	artifact.ID = id
	return nil
}

func (r *SQLiteArtifactRepository) GetByArchiveID(ctx context.Context, archiveID int64) ([]*models.Artifact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM archive_artifacts WHERE archive_id = ? ORDER BY id ASC`,
		archiveID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func (r *SQLiteArtifactRepository) FindOriginalBySHA256(ctx context.Context, sha256 string, excludeArchiveID int64) (*models.Artifact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM archive_artifacts
		WHERE sha256 = ? AND duplicate_of_artifact_id IS NULL AND archive_id != ?
		ORDER BY id ASC LIMIT 1`,
		sha256, excludeArchiveID)
	return scanArtifact(row)
}

func (r *SQLiteArtifactRepository) FindOriginalByPerceptualHash(ctx context.Context, phash string, excludeArchiveID int64) (*models.Artifact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+artifactColumns+` FROM archive_artifacts
		WHERE perceptual_hash = ? AND duplicate_of_artifact_id IS NULL AND archive_id != ?
		ORDER BY id ASC LIMIT 1`,
		phash, excludeArchiveID)
	return scanArtifact(row)
}

func (r *SQLiteArtifactRepository) HasDuplicateRefs(ctx context.Context, artifactID int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM archive_artifacts WHERE duplicate_of_artifact_id = ?`,
		artifactID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count duplicate refs: %w", err)
	}
	return count > 0, nil
}

func scanArtifact(row rowScanner) (*models.Artifact, error) {
	var (
		a           models.Artifact
		contentType sql.NullString
		sizeBytes   sql.NullInt64
		sha         sql.NullString
		phash       sql.NullString
		dupID       sql.NullInt64
		videoFileID sql.NullInt64
		metadata    sql.NullString
		createdAt   string
	)
	err := row.Scan(
		&a.ID, &a.ArchiveID, &a.Kind, &a.S3Key,
		&contentType, &sizeBytes, &sha, &phash,
		&dupID, &videoFileID, &metadata, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artifact: %w", err)
	}
	a.ContentType = contentType.String
	a.SizeBytes = sizeBytes.Int64
	a.SHA256 = sha.String
	a.PerceptualHash = phash.String
	a.DuplicateOfArtifactID = int64Ptr(dupID)
	a.VideoFileID = int64Ptr(videoFileID)
	a.Metadata = metadata.String
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}
