package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XertroV/linkarchive/internal/models"
)

// SQLitePostRepository implements PostRepository for SQLite.
type SQLitePostRepository struct {
	db *sql.DB
}

// NewSQLitePostRepository creates a new SQLite post repository.
func NewSQLitePostRepository(db *sql.DB) *SQLitePostRepository {
	return &SQLitePostRepository{db: db}
}

const postColumns = `id, guid, discourse_url, author, title, body_html, content_hash,
	published_at, processed_at, created_at`

// Upsert stores a post keyed by feed GUID. An unchanged content hash is a
// no-op; an edit replaces the body and clears processed_at so the post gets
// re-scanned for links.
func (r *SQLitePostRepository) Upsert(ctx context.Context, post *models.Post) (bool, error) {
	existing, err := r.GetByGUID(ctx, post.GUID)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.ContentHash == post.ContentHash {
		return false, nil
	}

	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	if existing == nil {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO posts (id, guid, discourse_url, author, title, body_html, content_hash,
				published_at, processed_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
			post.ID,
			post.GUID,
			post.DiscourseURL,
			nullString(post.Author),
			nullString(post.Title),
			nullString(post.BodyHTML),
			nullString(post.ContentHash),
			nullTime(post.PublishedAt),
			post.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert post: %w", err)
		}
		return true, nil
	}

	post.ID = existing.ID
	_, err = r.db.ExecContext(ctx, `
		UPDATE posts SET discourse_url = ?, author = ?, title = ?, body_html = ?,
			content_hash = ?, published_at = ?, processed_at = NULL
		WHERE guid = ?`,
		post.DiscourseURL,
		nullString(post.Author),
		nullString(post.Title),
		nullString(post.BodyHTML),
		nullString(post.ContentHash),
		nullTime(post.PublishedAt),
		post.GUID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update post: %w", err)
	}
	return true, nil
}

func (r *SQLitePostRepository) GetByGUID(ctx context.Context, guid string) (*models.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE guid = ?`, guid)
	return scanPost(row)
}

func (r *SQLitePostRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE posts SET processed_at = ? WHERE id = ?`, at.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to mark post processed: %w", err)
	}
	return nil
}

func (r *SQLitePostRepository) ListUnprocessed(ctx context.Context, limit int) ([]*models.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE processed_at IS NULL ORDER BY created_at ASC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		post        models.Post
		author      sql.NullString
		title       sql.NullString
		bodyHTML    sql.NullString
		contentHash sql.NullString
		publishedAt sql.NullString
		processedAt sql.NullString
		createdAt   string
	)
	err := row.Scan(
		&post.ID, &post.GUID, &post.DiscourseURL,
		&author, &title, &bodyHTML, &contentHash,
		&publishedAt, &processedAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}
	post.Author = author.String
	post.Title = title.String
	post.BodyHTML = bodyHTML.String
	post.ContentHash = contentHash.String
	post.PublishedAt = timePtr(publishedAt)
	post.ProcessedAt = timePtr(processedAt)
	post.CreatedAt = parseTime(createdAt)
	return &post, nil
}
