package sqlite

import (
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS file_metadata (
	file_id        TEXT    NOT NULL,
	chunk_id       INTEGER NOT NULL,
	filename       TEXT    NOT NULL,
	size           INTEGER NOT NULL DEFAULT 0,
	worker_id      TEXT    NOT NULL DEFAULT '',
	worker_address TEXT    NOT NULL DEFAULT '',
	upload_time    TEXT    NOT NULL,
	PRIMARY KEY (file_id, chunk_id)
) STRICT;

CREATE INDEX IF NOT EXISTS idx_file_metadata_filename ON file_metadata(filename);
`

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create file_metadata schema: %w", err)
	}
	return nil
}
