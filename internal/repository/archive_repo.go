package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// SQLiteArchiveRepository implements ArchiveRepository for SQLite.
type SQLiteArchiveRepository struct {
	db *sql.DB
}

// NewSQLiteArchiveRepository creates a new SQLite archive repository.
func NewSQLiteArchiveRepository(db *sql.DB) *SQLiteArchiveRepository {
	return &SQLiteArchiveRepository{db: db}
}

const archiveColumns = `id, link_id, status, archived_at, content_title, content_author,
	content_text, content_type, s3_key_primary, s3_key_thumb, s3_keys_extra,
	wayback_url, archive_today_url, ipfs_cid, is_nsfw, nsfw_source,
	error_message, retry_count, next_retry_at, last_attempt_at, http_status_code,
	post_date, quoted_archive_id, reply_to_archive_id, created_at`

func (r *SQLiteArchiveRepository) EnsureForLink(ctx context.Context, linkID int64, postDate *time.Time) (*models.Archive, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO archives (link_id, status, post_date, created_at)
		VALUES (?, 'pending', ?, ?)`,
		linkID, nullTime(postDate), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert archive: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 && postDate != nil {
		// The link was discovered before the feed supplied its post date.
		if _, err := r.db.ExecContext(ctx, `
			UPDATE archives SET post_date = ? WHERE link_id = ? AND post_date IS NULL`,
			nullTime(postDate), linkID,
		); err != nil {
			return nil, false, fmt.Errorf("failed to backfill post date: %w", err)
		}
	}

	archive, err := r.GetByLinkID(ctx, linkID)
	if err != nil {
		return nil, false, err
	}
	if archive == nil {
		return nil, false, fmt.Errorf("archive vanished after insert for link %d", linkID)
	}
	return archive, affected > 0, nil
}

func (r *SQLiteArchiveRepository) GetByID(ctx context.Context, id int64) (*models.Archive, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+archiveColumns+` FROM archives WHERE id = ?`, id)
	return scanArchive(row)
}

func (r *SQLiteArchiveRepository) GetByLinkID(ctx context.Context, linkID int64) (*models.Archive, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+archiveColumns+` FROM archives WHERE link_id = ?`, linkID)
	return scanArchive(row)
}

// Claim is the single write that decides which worker owns an archive. The
// guarded UPDATE means a lost race is zero affected rows, never an error.
func (r *SQLiteArchiveRepository) Claim(ctx context.Context, id int64, maxRetries int) (*models.Archive, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	// The failed-row predicate matches PickBatch exactly; a picked archive is
	// always claimable until someone else claims it.
	res, err := r.db.ExecContext(ctx, `
		UPDATE archives SET status = 'processing', last_attempt_at = ?
		WHERE id = ?
		  AND (status = 'pending'
		       OR (status = 'failed' AND retry_count < ?
		           AND (next_retry_at IS NULL OR next_retry_at <= ?)))`,
		now, id, maxRetries, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim archive: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteArchiveRepository) PickBatch(ctx context.Context, limit, maxRetries int) ([]int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	// Rows without a retry time (fresh pending) sort ahead of due retries.
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM archives
		WHERE status = 'pending'
		   OR (status = 'failed' AND retry_count < ?
		       AND (next_retry_at IS NULL OR next_retry_at <= ?))
		ORDER BY (next_retry_at IS NOT NULL), next_retry_at ASC, created_at ASC
		LIMIT ?`,
		maxRetries, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pick batch: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteArchiveRepository) MarkComplete(ctx context.Context, archive *models.Archive) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE archives SET
			status = 'complete',
			archived_at = ?,
			content_title = ?,
			content_author = ?,
			content_text = ?,
			content_type = ?,
			s3_key_primary = ?,
			s3_key_thumb = ?,
			s3_keys_extra = ?,
			wayback_url = ?,
			archive_today_url = ?,
			ipfs_cid = ?,
			is_nsfw = ?,
			nsfw_source = ?,
			error_message = NULL,
			next_retry_at = NULL,
			last_attempt_at = ?,
			http_status_code = ?,
			post_date = ?
		WHERE id = ?`,
		now.Format(time.RFC3339),
		nullString(archive.ContentTitle),
		nullString(archive.ContentAuthor),
		nullString(archive.ContentText),
		nullString(string(archive.ContentType)),
		nullString(archive.S3KeyPrimary),
		nullString(archive.S3KeyThumb),
		nullString(archive.S3KeysExtra),
		nullString(archive.WaybackURL),
		nullString(archive.ArchiveTodayURL),
		nullString(archive.IPFSCid),
		boolToInt(archive.IsNSFW),
		nullString(string(archive.NSFWSource)),
		now.Format(time.RFC3339),
		nullInt(archive.HTTPStatusCode),
		nullTime(archive.PostDate),
		archive.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark archive complete: %w", err)
	}
	return nil
}

// MarkFailed schedules the next attempt at now + baseDelay * 2^retry_count,
// reading retry_count before incrementing it, so the delays run
// base, 2*base, 4*base, ... Once the incremented count reaches maxRetries the
// archive stays failed with no retry time and leaves the rotation.
func (r *SQLiteArchiveRepository) MarkFailed(ctx context.Context, id int64, errMsg string, httpStatus int, maxRetries int, baseDelay time.Duration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var retryCount int
	err = tx.QueryRowContext(ctx,
		`SELECT retry_count FROM archives WHERE id = ?`, id).Scan(&retryCount)
	if err == sql.ErrNoRows {
		return fmt.Errorf("archive %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read retry count: %w", err)
	}

	now := time.Now().UTC()
	var nextRetry sql.NullString
	if retryCount+1 < maxRetries {
		delay := baseDelay * (1 << uint(retryCount))
		nextRetry = sql.NullString{String: now.Add(delay).Format(time.RFC3339), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE archives SET
			status = 'failed',
			error_message = ?,
			http_status_code = ?,
			retry_count = retry_count + 1,
			next_retry_at = ?,
			last_attempt_at = ?
		WHERE id = ?`,
		nullString(errMsg), nullInt(httpStatus), nextRetry, now.Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark archive failed: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteArchiveRepository) MarkAuthRequired(ctx context.Context, id int64, errMsg string, httpStatus int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE archives SET
			status = 'auth_required',
			error_message = ?,
			http_status_code = ?,
			next_retry_at = NULL,
			last_attempt_at = ?
		WHERE id = ?`,
		nullString(errMsg), nullInt(httpStatus), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark archive auth_required: %w", err)
	}
	return nil
}

func (r *SQLiteArchiveRepository) MarkSkipped(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE archives SET
			status = 'skipped',
			error_message = ?,
			next_retry_at = NULL,
			last_attempt_at = ?
		WHERE id = ?`,
		nullString(reason), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark archive skipped: %w", err)
	}
	return nil
}

func (r *SQLiteArchiveRepository) SetThreadRefs(ctx context.Context, id int64, quotedArchiveID, replyToArchiveID *int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE archives SET quoted_archive_id = ?, reply_to_archive_id = ? WHERE id = ?`,
		nullInt64Ptr(quotedArchiveID), nullInt64Ptr(replyToArchiveID), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set thread refs: %w", err)
	}
	return nil
}

func (r *SQLiteArchiveRepository) ResetForRetry(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE archives SET
			status = 'pending',
			retry_count = 0,
			next_retry_at = NULL,
			error_message = NULL
		WHERE id = ? AND status != 'processing'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to reset archive: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("archive %d is processing or does not exist", id)
	}
	return nil
}

func (r *SQLiteArchiveRepository) ResetForRearchive(ctx context.Context, id int64, preserveMetadata bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteArtifactsTx(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM archive_jobs WHERE archive_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete archive jobs: %w", err)
	}

	query := `
		UPDATE archives SET
			status = 'pending',
			archived_at = NULL,
			s3_key_primary = NULL,
			s3_key_thumb = NULL,
			s3_keys_extra = NULL,
			retry_count = 0,
			next_retry_at = NULL,
			error_message = NULL
		WHERE id = ?`
	if !preserveMetadata {
		query = `
		UPDATE archives SET
			status = 'pending',
			archived_at = NULL,
			content_title = NULL,
			content_author = NULL,
			content_text = NULL,
			content_type = NULL,
			s3_key_primary = NULL,
			s3_key_thumb = NULL,
			s3_keys_extra = NULL,
			is_nsfw = 0,
			nsfw_source = NULL,
			retry_count = 0,
			next_retry_at = NULL,
			error_message = NULL
		WHERE id = ?`
	}
	res, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reset archive for rearchive: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("archive %d not found", id)
	}
	return tx.Commit()
}

func (r *SQLiteArchiveRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteArtifactsTx(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM archive_jobs WHERE archive_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete archive jobs: %w", err)
	}
	// Archives quoting or replying to this one keep their own content; the
	// dangling reference just goes away.
	if _, err := tx.ExecContext(ctx,
		`UPDATE archives SET quoted_archive_id = NULL WHERE quoted_archive_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear quoted refs: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE archives SET reply_to_archive_id = NULL WHERE reply_to_archive_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear reply refs: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM archives WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return tx.Commit()
}

// deleteArtifactsTx removes an archive's artifacts after nulling out
// duplicate references other archives hold into them. Skipping the null-out
// would orphan those references.
func deleteArtifactsTx(ctx context.Context, tx *sql.Tx, archiveID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE archive_artifacts SET duplicate_of_artifact_id = NULL
		WHERE duplicate_of_artifact_id IN
			(SELECT id FROM archive_artifacts WHERE archive_id = ?)`,
		archiveID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear duplicate refs: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM archive_artifacts WHERE archive_id = ?`, archiveID); err != nil {
		return fmt.Errorf("failed to delete artifacts: %w", err)
	}
	return nil
}

func (r *SQLiteArchiveRepository) RecoverStuckProcessing(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE archives SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("failed to recover processing archives: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

// ResetFailedSince re-queues failures still under the retry ceiling whose
// last attempt (or creation) falls after the cutoff. Archives parked at the
// ceiling stay parked; they failed on content, not on our crash.
func (r *SQLiteArchiveRepository) ResetFailedSince(ctx context.Context, cutoff time.Time, maxRetries int) (int64, error) {
	c := cutoff.Format(time.RFC3339)
	res, err := r.db.ExecContext(ctx, `
		UPDATE archives SET
			status = 'pending',
			next_retry_at = NULL
		WHERE status = 'failed' AND retry_count < ?
		  AND (last_attempt_at >= ? OR created_at >= ?)`,
		maxRetries, c, c,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset recent failures: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected, nil
}

func (r *SQLiteArchiveRepository) List(ctx context.Context, filter ArchiveFilter) ([]*ArchiveWithLink, error) {
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "a.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ContentType != "" {
		conds = append(conds, "a.content_type = ?")
		args = append(args, string(filter.ContentType))
	}
	if filter.Domain != "" {
		conds = append(conds, "l.domain = ?")
		args = append(args, filter.Domain)
	}
	if filter.NSFW != nil {
		conds = append(conds, "a.is_nsfw = ?")
		args = append(args, boolToInt(*filter.NSFW))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM archives a JOIN links l ON l.id = a.link_id
		%s
		ORDER BY a.created_at DESC
		LIMIT ? OFFSET ?`,
		prefixColumns("a", archiveColumns), prefixColumns("l", linkColumns), where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	defer rows.Close()
	return scanArchivesWithLinks(rows)
}

func (r *SQLiteArchiveRepository) Search(ctx context.Context, query string, limit, offset int) ([]*ArchiveWithLink, error) {
	if limit <= 0 {
		limit = 50
	}
	sqlQuery := fmt.Sprintf(`
		SELECT %s, %s
		FROM archives_fts f
		JOIN archives a ON a.id = f.rowid
		JOIN links l ON l.id = a.link_id
		WHERE archives_fts MATCH ?
		ORDER BY f.rank
		LIMIT ? OFFSET ?`,
		prefixColumns("a", archiveColumns), prefixColumns("l", linkColumns))

	rows, err := r.db.QueryContext(ctx, sqlQuery, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search archives: %w", err)
	}
	defer rows.Close()
	return scanArchivesWithLinks(rows)
}

func (r *SQLiteArchiveRepository) Stats(ctx context.Context) (*ArchiveStats, error) {
	stats := &ArchiveStats{
		ByStatus:      map[string]int64{},
		ByContentType: map[string]int64{},
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM archives GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = n
		stats.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT content_type, COUNT(*) FROM archives WHERE content_type IS NOT NULL GROUP BY content_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by content type: %w", err)
	}
	for rows.Next() {
		var ct string
		var n int64
		if err := rows.Scan(&ct, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan content type count: %w", err)
		}
		stats.ByContentType[ct] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT
			coalesce(SUM(CASE WHEN duplicate_of_artifact_id IS NULL THEN size_bytes ELSE 0 END), 0),
			coalesce(SUM(CASE WHEN duplicate_of_artifact_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM archive_artifacts`,
	).Scan(&stats.TotalArtifactBytes, &stats.DuplicateArtifacts)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate artifacts: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM video_files`).Scan(&stats.VideoFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to count video files: %w", err)
	}

	return stats, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanArchive(row rowScanner) (*models.Archive, error) {
	a, err := scanArchiveFields(row, nil)
	return a, err
}

func scanArchivesWithLinks(rows *sql.Rows) ([]*ArchiveWithLink, error) {
	var out []*ArchiveWithLink
	for rows.Next() {
		item, err := scanArchiveWithLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanArchiveWithLink(row rowScanner) (*ArchiveWithLink, error) {
	var item ArchiveWithLink
	var link linkScanBuf
	archive, err := scanArchiveFields(row, &link)
	if err != nil || archive == nil {
		return nil, err
	}
	item.Archive = *archive
	item.Link = link.toModel()
	return &item, nil
}

// linkScanBuf holds nullable link columns during a joined scan.
type linkScanBuf struct {
	link           models.Link
	canonicalURL   sql.NullString
	finalURL       sql.NullString
	firstSeenAt    string
	lastArchivedAt sql.NullString
}

func (b *linkScanBuf) toModel() models.Link {
	b.link.CanonicalURL = b.canonicalURL.String
	b.link.FinalURL = b.finalURL.String
	b.link.FirstSeenAt = parseTime(b.firstSeenAt)
	b.link.LastArchivedAt = timePtr(b.lastArchivedAt)
	return b.link
}

// scanArchiveFields scans the archive columns, plus the link columns when a
// buffer is supplied (joined queries select both).
func scanArchiveFields(row rowScanner, link *linkScanBuf) (*models.Archive, error) {
	var (
		a                models.Archive
		archivedAt       sql.NullString
		contentTitle     sql.NullString
		contentAuthor    sql.NullString
		contentText      sql.NullString
		contentType      sql.NullString
		s3KeyPrimary     sql.NullString
		s3KeyThumb       sql.NullString
		s3KeysExtra      sql.NullString
		waybackURL       sql.NullString
		archiveTodayURL  sql.NullString
		ipfsCid          sql.NullString
		isNSFW           int
		nsfwSource       sql.NullString
		errorMessage     sql.NullString
		nextRetryAt      sql.NullString
		lastAttemptAt    sql.NullString
		httpStatusCode   sql.NullInt64
		postDate         sql.NullString
		quotedArchiveID  sql.NullInt64
		replyToArchiveID sql.NullInt64
		createdAt        string
	)

	dest := []any{
		&a.ID, &a.LinkID, &a.Status, &archivedAt,
		&contentTitle, &contentAuthor, &contentText, &contentType,
		&s3KeyPrimary, &s3KeyThumb, &s3KeysExtra,
		&waybackURL, &archiveTodayURL, &ipfsCid,
		&isNSFW, &nsfwSource,
		&errorMessage, &a.RetryCount, &nextRetryAt, &lastAttemptAt, &httpStatusCode,
		&postDate, &quotedArchiveID, &replyToArchiveID, &createdAt,
	}
	if link != nil {
		dest = append(dest,
			&link.link.ID, &link.link.OriginalURL, &link.link.NormalizedURL,
			&link.canonicalURL, &link.finalURL, &link.link.Domain,
			&link.firstSeenAt, &link.lastArchivedAt,
		)
	}

	err := row.Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan archive: %w", err)
	}

	a.ArchivedAt = timePtr(archivedAt)
	a.ContentTitle = contentTitle.String
	a.ContentAuthor = contentAuthor.String
	a.ContentText = contentText.String
	a.ContentType = models.ContentType(contentType.String)
	a.S3KeyPrimary = s3KeyPrimary.String
	a.S3KeyThumb = s3KeyThumb.String
	a.S3KeysExtra = s3KeysExtra.String
	a.WaybackURL = waybackURL.String
	a.ArchiveTodayURL = archiveTodayURL.String
	a.IPFSCid = ipfsCid.String
	a.IsNSFW = isNSFW != 0
	a.NSFWSource = models.NSFWSource(nsfwSource.String)
	a.ErrorMessage = errorMessage.String
	a.NextRetryAt = timePtr(nextRetryAt)
	a.LastAttemptAt = timePtr(lastAttemptAt)
	a.HTTPStatusCode = int(httpStatusCode.Int64)
	a.PostDate = timePtr(postDate)
	a.QuotedArchiveID = int64Ptr(quotedArchiveID)
	a.ReplyToArchiveID = int64Ptr(replyToArchiveID)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
