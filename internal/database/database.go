// Package database handles database connections and migrations.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/XertroV/linkarchive/internal/database/migrations"
)

// New opens a libsql/SQLite database and applies the pragmas the pipeline
// relies on: WAL so a UI-triggered delete and a worker write degrade to brief
// waits, a 10 s busy timeout, and enforced foreign keys.
func New(dsn string) (*sql.DB, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate runs database migrations.
func Migrate(db *sql.DB) error {
	return migrations.Run(db, nil)
}

// MigrateWithLogger runs database migrations with a custom logger.
func MigrateWithLogger(db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(db, logger)
}

// VerifyWritable opens and commits an empty immediate transaction. This fails
// fast on read-only filesystems instead of at the first archive write.
func VerifyWritable(db *sql.DB) error {
	if _, err := db.Exec("BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("database is not writable: %w", err)
	}
	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("database is not writable: %w", err)
	}
	return nil
}

// GetLatestSchemaVersion returns the most recent applied migration version.
func GetLatestSchemaVersion(db *sql.DB) (string, error) {
	return migrations.GetLatestVersion(db)
}

// GetMigrationCount returns the total number of applied migrations.
func GetMigrationCount(db *sql.DB) (int, error) {
	return migrations.GetMigrationCount(db)
}
