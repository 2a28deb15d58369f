package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250301-000000",
		Description: "Initial schema",
		Up: []string{
			// Forum posts pulled from the RSS feed. guid is the feed's stable
			// identity; content_hash detects edited posts on re-poll.
			`CREATE TABLE IF NOT EXISTS posts (
				id TEXT PRIMARY KEY,
				guid TEXT UNIQUE NOT NULL,
				discourse_url TEXT NOT NULL,
				author TEXT,
				title TEXT,
				body_html TEXT,
				content_hash TEXT,
				published_at TEXT,
				processed_at TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_posts_processed_at ON posts(processed_at)`,

			// Deduplicated URLs. normalized_url is the lookup key; canonical_url
			// holds handler-specific canonical forms (e.g. old.reddit.com).
			`CREATE TABLE IF NOT EXISTS links (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				original_url TEXT NOT NULL,
				normalized_url TEXT UNIQUE NOT NULL,
				canonical_url TEXT,
				final_url TEXT,
				domain TEXT NOT NULL,
				first_seen_at TEXT NOT NULL,
				last_archived_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_links_domain ON links(domain)`,

			// One archive per link, enforced by the UNIQUE constraint so that
			// concurrent ensure calls collapse via INSERT OR IGNORE.
			`CREATE TABLE IF NOT EXISTS archives (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				link_id INTEGER UNIQUE NOT NULL REFERENCES links(id),
				status TEXT NOT NULL DEFAULT 'pending',
				archived_at TEXT,
				content_title TEXT,
				content_author TEXT,
				content_text TEXT,
				content_type TEXT,
				s3_key_primary TEXT,
				s3_key_thumb TEXT,
				s3_keys_extra TEXT,
				wayback_url TEXT,
				archive_today_url TEXT,
				ipfs_cid TEXT,
				is_nsfw INTEGER NOT NULL DEFAULT 0,
				nsfw_source TEXT,
				error_message TEXT,
				retry_count INTEGER NOT NULL DEFAULT 0,
				next_retry_at TEXT,
				last_attempt_at TEXT,
				http_status_code INTEGER,
				post_date TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_archives_status ON archives(status)`,
			`CREATE INDEX IF NOT EXISTS idx_archives_next_retry_at ON archives(next_retry_at)`,
			`CREATE INDEX IF NOT EXISTS idx_archives_content_type ON archives(content_type)`,

			// Shared video payloads, deduped across archives. First writer wins
			// on s3_key; INSERT OR IGNORE + SELECT makes creation race-safe.
			`CREATE TABLE IF NOT EXISTS video_files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				platform TEXT NOT NULL,
				video_id TEXT NOT NULL,
				s3_key TEXT NOT NULL,
				metadata_s3_key TEXT,
				size_bytes INTEGER,
				content_type TEXT,
				duration_seconds REAL,
				created_at TEXT NOT NULL,
				UNIQUE(platform, video_id),
				UNIQUE(s3_key)
			)`,

			// Stored files belonging to an archive. duplicate_of_artifact_id is a
			// self-reference; delete paths must null it out before removing rows.
			`CREATE TABLE IF NOT EXISTS archive_artifacts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				archive_id INTEGER NOT NULL REFERENCES archives(id) ON DELETE CASCADE,
				kind TEXT NOT NULL,
				s3_key TEXT NOT NULL,
				content_type TEXT,
				size_bytes INTEGER,
				sha256 TEXT,
				perceptual_hash TEXT,
				duplicate_of_artifact_id INTEGER REFERENCES archive_artifacts(id),
				video_file_id INTEGER REFERENCES video_files(id),
				metadata TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_artifacts_archive_id ON archive_artifacts(archive_id)`,
			`CREATE INDEX IF NOT EXISTS idx_artifacts_perceptual_hash ON archive_artifacts(perceptual_hash)`,
			`CREATE INDEX IF NOT EXISTS idx_artifacts_video_file_id ON archive_artifacts(video_file_id)`,

			// Sub-task bookkeeping for multi-step pipelines within one archive.
			`CREATE TABLE IF NOT EXISTS archive_jobs (
				id TEXT PRIMARY KEY,
				archive_id INTEGER NOT NULL REFERENCES archives(id) ON DELETE CASCADE,
				job_type TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				started_at TEXT,
				completed_at TEXT,
				metadata TEXT,
				error_message TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_archive_jobs_archive_id ON archive_jobs(archive_id)`,

			// User-submitted URLs pending ingestion.
			`CREATE TABLE IF NOT EXISTS submissions (
				id TEXT PRIMARY KEY,
				url TEXT NOT NULL,
				normalized_url TEXT NOT NULL,
				submitted_by_ip TEXT NOT NULL,
				submitted_by_user_id TEXT,
				status TEXT NOT NULL DEFAULT 'pending',
				link_id INTEGER REFERENCES links(id),
				error_message TEXT,
				created_at TEXT NOT NULL,
				processed_at TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions(status)`,
			`CREATE INDEX IF NOT EXISTS idx_submissions_ip_created ON submissions(submitted_by_ip, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_submissions_normalized_url ON submissions(normalized_url, created_at)`,

			// Full-text index over archive text fields, kept in sync by triggers
			// so every write path (rearchive, import, delete) stays coherent.
			`CREATE VIRTUAL TABLE IF NOT EXISTS archives_fts USING fts5(
				content_title,
				content_author,
				content_text,
				content='archives',
				content_rowid='id'
			)`,
			`CREATE TRIGGER IF NOT EXISTS archives_fts_insert AFTER INSERT ON archives BEGIN
				INSERT INTO archives_fts(rowid, content_title, content_author, content_text)
				VALUES (new.id, coalesce(new.content_title, ''), coalesce(new.content_author, ''), coalesce(new.content_text, ''));
			END`,
			`CREATE TRIGGER IF NOT EXISTS archives_fts_delete AFTER DELETE ON archives BEGIN
				INSERT INTO archives_fts(archives_fts, rowid, content_title, content_author, content_text)
				VALUES ('delete', old.id, coalesce(old.content_title, ''), coalesce(old.content_author, ''), coalesce(old.content_text, ''));
			END`,
			`CREATE TRIGGER IF NOT EXISTS archives_fts_update AFTER UPDATE ON archives BEGIN
				INSERT INTO archives_fts(archives_fts, rowid, content_title, content_author, content_text)
				VALUES ('delete', old.id, coalesce(old.content_title, ''), coalesce(old.content_author, ''), coalesce(old.content_text, ''));
				INSERT INTO archives_fts(rowid, content_title, content_author, content_text)
				VALUES (new.id, coalesce(new.content_title, ''), coalesce(new.content_author, ''), coalesce(new.content_text, ''));
			END`,
		},
	})
}
