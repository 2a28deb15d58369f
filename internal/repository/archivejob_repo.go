package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// SQLiteArchiveJobRepository implements ArchiveJobRepository for SQLite.
type SQLiteArchiveJobRepository struct {
	db *sql.DB
}

// NewSQLiteArchiveJobRepository creates a new SQLite archive job repository.
func NewSQLiteArchiveJobRepository(db *sql.DB) *SQLiteArchiveJobRepository {
	return &SQLiteArchiveJobRepository{db: db}
}

const archiveJobColumns = `id, archive_id, job_type, status, started_at, completed_at,
	metadata, error_message, created_at`

func (r *SQLiteArchiveJobRepository) Create(ctx context.Context, job *models.ArchiveJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.ArchiveJobStatusPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO archive_jobs (id, archive_id, job_type, status, started_at, completed_at,
			metadata, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.ArchiveID,
		job.JobType,
		string(job.Status),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullString(job.Metadata),
		nullString(job.ErrorMessage),
		job.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create archive job: %w", err)
	}
	return nil
}

func (r *SQLiteArchiveJobRepository) Start(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE archive_jobs SET status = 'running', started_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to start archive job: %w", err)
	}
	return nil
}

func (r *SQLiteArchiveJobRepository) Complete(ctx context.Context, id string, metadata string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE archive_jobs SET status = 'completed', completed_at = ?, metadata = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), nullString(metadata), id)
	if err != nil {
		return fmt.Errorf("failed to complete archive job: %w", err)
	}
	return nil
}

func (r *SQLiteArchiveJobRepository) Fail(ctx context.Context, id string, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE archive_jobs SET status = 'failed', completed_at = ?, error_message = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), nullString(errMsg), id)
	if err != nil {
		return fmt.Errorf("failed to fail archive job: %w", err)
	}
	return nil
}

func (r *SQLiteArchiveJobRepository) GetByArchiveID(ctx context.Context, archiveID int64) ([]*models.ArchiveJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+archiveJobColumns+` FROM archive_jobs WHERE archive_id = ? ORDER BY created_at ASC`,
		archiveID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ArchiveJob
	for rows.Next() {
		var (
			job          models.ArchiveJob
			startedAt    sql.NullString
			completedAt  sql.NullString
			metadata     sql.NullString
			errorMessage sql.NullString
			createdAt    string
		)
		err := rows.Scan(
			&job.ID, &job.ArchiveID, &job.JobType, &job.Status,
			&startedAt, &completedAt, &metadata, &errorMessage, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan archive job: %w", err)
		}
		job.StartedAt = timePtr(startedAt)
		job.CompletedAt = timePtr(completedAt)
		job.Metadata = metadata.String
		job.ErrorMessage = errorMessage.String
		job.CreatedAt = parseTime(createdAt)
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}
