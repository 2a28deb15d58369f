package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// SQLiteSubmissionRepository implements SubmissionRepository for SQLite.
type SQLiteSubmissionRepository struct {
	db *sql.DB
}

// NewSQLiteSubmissionRepository creates a new SQLite submission repository.
func NewSQLiteSubmissionRepository(db *sql.DB) *SQLiteSubmissionRepository {
	return &SQLiteSubmissionRepository{db: db}
}

const submissionColumns = `id, url, normalized_url, submitted_by_ip, submitted_by_user_id,
	status, link_id, error_message, created_at, processed_at`

func (r *SQLiteSubmissionRepository) Create(ctx context.Context, sub *models.Submission) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if sub.Status == "" {
		sub.Status = models.SubmissionStatusPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO submissions (id, url, normalized_url, submitted_by_ip, submitted_by_user_id,
			status, link_id, error_message, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.URL,
		sub.NormalizedURL,
		sub.SubmittedByIP,
		nullString(sub.SubmittedByUserID),
		string(sub.Status),
		nullInt64Ptr(sub.LinkID),
		nullString(sub.ErrorMessage),
		sub.CreatedAt.Format(time.RFC3339),
		nullTime(sub.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (r *SQLiteSubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	return scanSubmission(row)
}

func (r *SQLiteSubmissionRepository) CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE submitted_by_ip = ? AND created_at >= ?`,
		ip, since.Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	return count, nil
}

func (r *SQLiteSubmissionRepository) HasRecentURL(ctx context.Context, normalizedURL string, since time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM submissions
		WHERE normalized_url = ? AND created_at >= ? AND status != 'rejected'`,
		normalizedURL, since.Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent submissions: %w", err)
	}
	return count > 0, nil
}

func (r *SQLiteSubmissionRepository) ClaimPending(ctx context.Context) (*models.Submission, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM submissions WHERE status = 'pending' ORDER BY created_at ASC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending submission: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET status = 'processing' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to claim submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	sub, err := scanSubmission(tx.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return sub, nil
}

func (r *SQLiteSubmissionRepository) MarkComplete(ctx context.Context, id string, linkID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE submissions SET status = 'complete', link_id = ?, processed_at = ? WHERE id = ?`,
		linkID, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark submission complete: %w", err)
	}
	return nil
}

func (r *SQLiteSubmissionRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE submissions SET status = 'failed', error_message = ?, processed_at = ? WHERE id = ?`,
		nullString(errMsg), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark submission failed: %w", err)
	}
	return nil
}

func (r *SQLiteSubmissionRepository) RecoverStuckProcessing(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE submissions SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("failed to recover processing submissions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		sub          models.Submission
		userID       sql.NullString
		linkID       sql.NullInt64
		errorMessage sql.NullString
		createdAt    string
		processedAt  sql.NullString
	)
	err := row.Scan(
		&sub.ID, &sub.URL, &sub.NormalizedURL, &sub.SubmittedByIP,
		&userID, &sub.Status, &linkID, &errorMessage, &createdAt, &processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}
	sub.SubmittedByUserID = userID.String
	sub.LinkID = int64Ptr(linkID)
	sub.ErrorMessage = errorMessage.String
	sub.CreatedAt = parseTime(createdAt)
	sub.ProcessedAt = timePtr(processedAt)
	return &sub, nil
}
