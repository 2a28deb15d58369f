package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250418-103000",
		Description: "Quote and reply chains between archives",
		Up: []string{
			`ALTER TABLE archives ADD COLUMN quoted_archive_id INTEGER REFERENCES archives(id)`,
			`ALTER TABLE archives ADD COLUMN reply_to_archive_id INTEGER REFERENCES archives(id)`,
			`CREATE INDEX IF NOT EXISTS idx_archives_quoted ON archives(quoted_archive_id)`,
			`CREATE INDEX IF NOT EXISTS idx_archives_reply_to ON archives(reply_to_archive_id)`,
		},
	})
}
