package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// SQLiteLinkRepository implements LinkRepository for SQLite.
type SQLiteLinkRepository struct {
	db *sql.DB
}

// NewSQLiteLinkRepository creates a new SQLite link repository.
func NewSQLiteLinkRepository(db *sql.DB) *SQLiteLinkRepository {
	return &SQLiteLinkRepository{db: db}
}

const linkColumns = `id, original_url, normalized_url, canonical_url, final_url, domain,
	first_seen_at, last_archived_at`

func (r *SQLiteLinkRepository) GetOrCreate(ctx context.Context, link *models.Link) (*models.Link, bool, error) {
	if link.FirstSeenAt.IsZero() {
		link.FirstSeenAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO links (original_url, normalized_url, canonical_url, final_url, domain, first_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		link.OriginalURL,
		link.NormalizedURL,
		nullString(link.CanonicalURL),
		nullString(link.FinalURL),
		link.Domain,
		link.FirstSeenAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	stored, err := r.GetByNormalizedURL(ctx, link.NormalizedURL)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("link vanished after insert: %s", link.NormalizedURL)
	}
	return stored, affected > 0, nil
}

func (r *SQLiteLinkRepository) GetByID(ctx context.Context, id int64) (*models.Link, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE id = ?`, id)
	return scanLink(row)
}

func (r *SQLiteLinkRepository) GetByNormalizedURL(ctx context.Context, normalizedURL string) (*models.Link, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE normalized_url = ?`, normalizedURL)
	return scanLink(row)
}

func (r *SQLiteLinkRepository) SetFinalURL(ctx context.Context, id int64, finalURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE links SET final_url = ? WHERE id = ?`, nullString(finalURL), id)
	if err != nil {
		return fmt.Errorf("failed to set final url: %w", err)
	}
	return nil
}

func (r *SQLiteLinkRepository) TouchLastArchived(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE links SET last_archived_at = ? WHERE id = ?`, at.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to touch link: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*models.Link, error) {
	var (
		link           models.Link
		canonicalURL   sql.NullString
		finalURL       sql.NullString
		firstSeenAt    string
		lastArchivedAt sql.NullString
	)
	err := row.Scan(
		&link.ID,
		&link.OriginalURL,
		&link.NormalizedURL,
		&canonicalURL,
		&finalURL,
		&link.Domain,
		&firstSeenAt,
		&lastArchivedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}
	link.CanonicalURL = canonicalURL.String
	link.FinalURL = finalURL.String
	link.FirstSeenAt = parseTime(firstSeenAt)
	link.LastArchivedAt = timePtr(lastArchivedAt)
	return &link, nil
}
