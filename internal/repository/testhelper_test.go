package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/XertroV/linkarchive/internal/database/migrations"
	"github.com/XertroV/linkarchive/internal/models"
	_ "github.com/tursodatabase/go-libsql"
)

// testMaxRetries is the retry ceiling used across repository tests.
const testMaxRetries = 5

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	// One connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// createTestLink inserts a link and returns it.
func createTestLink(t *testing.T, repos *Repositories, normalizedURL string) *models.Link {
	t.Helper()
	link, _, err := repos.Links.GetOrCreate(context.Background(), &models.Link{
		OriginalURL:   normalizedURL,
		NormalizedURL: normalizedURL,
		Domain:        "example.com",
	})
	if err != nil {
		t.Fatalf("failed to create test link: %v", err)
	}
	return link
}

// createTestArchive inserts a link and its pending archive and returns the archive.
func createTestArchive(t *testing.T, repos *Repositories, normalizedURL string) *models.Archive {
	t.Helper()
	link := createTestLink(t, repos, normalizedURL)
	archive, _, err := repos.Archives.EnsureForLink(context.Background(), link.ID, nil)
	if err != nil {
		t.Fatalf("failed to create test archive: %v", err)
	}
	return archive
}

// completeTestArchive drives an archive to complete with the given content.
func completeTestArchive(t *testing.T, repos *Repositories, archive *models.Archive, title, text string) {
	t.Helper()
	ctx := context.Background()
	claimed, err := repos.Archives.Claim(ctx, archive.ID, testMaxRetries)
	if err != nil {
		t.Fatalf("failed to claim archive: %v", err)
	}
	if claimed == nil {
		t.Fatalf("archive %d was not claimable", archive.ID)
	}
	claimed.ContentTitle = title
	claimed.ContentText = text
	claimed.ContentType = models.ContentTypeText
	if err := repos.Archives.MarkComplete(ctx, claimed); err != nil {
		t.Fatalf("failed to complete archive: %v", err)
	}
}

// setLastAttempt rewrites last_attempt_at for recovery tests.
func setLastAttempt(t *testing.T, db *sql.DB, archiveID int64, at time.Time) {
	t.Helper()
	if _, err := db.Exec(
		`UPDATE archives SET last_attempt_at = ? WHERE id = ?`,
		at.Format(time.RFC3339), archiveID,
	); err != nil {
		t.Fatalf("failed to set last_attempt_at: %v", err)
	}
}
