// Package sqlite is the SQLite-backed implementation of metadata.Gateway.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kluzzebass/filemesh/internal/metadata"
)

const timeFormat = time.RFC3339Nano

// Store is the sqlite-backed metadata.Gateway.
type Store struct {
	db *sql.DB
}

var _ metadata.Gateway = (*Store)(nil)

// NewStore opens (creating if needed) a sqlite database at path and runs
// migrations. Use ":memory:" for an ephemeral, test-only database.
func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create metadata directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// file_metadata is written by many concurrent placement decisions;
	// a single connection serializes writers and lets sqlite's own
	// unique-index check be the race arbiter Save relies on.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FindByFilename(ctx context.Context, filename string) (metadata.Row, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_id, chunk_id, filename, size, worker_id, worker_address, upload_time
		FROM file_metadata
		WHERE filename = ?
		ORDER BY file_id, chunk_id
		LIMIT 1`, filename)
	return scanRow(row)
}

func (s *Store) FindByFileIDAndChunkID(ctx context.Context, fileID string, chunkID int) (metadata.Row, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_id, chunk_id, filename, size, worker_id, worker_address, upload_time
		FROM file_metadata
		WHERE file_id = ? AND chunk_id = ?`, fileID, chunkID)
	return scanRow(row)
}

func (s *Store) FindAllByFileID(ctx context.Context, fileID string) ([]metadata.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, chunk_id, filename, size, worker_id, worker_address, upload_time
		FROM file_metadata
		WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, fmt.Errorf("query file_metadata: %w", err)
	}
	defer rows.Close()

	var result []metadata.Row
	for rows.Next() {
		r, err := scanRowFrom(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) Save(ctx context.Context, row metadata.Row, insertPlaceholder bool) error {
	uploadTime := row.UploadTime
	if uploadTime.IsZero() {
		uploadTime = time.Now().UTC()
	}

	if insertPlaceholder {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO file_metadata (file_id, chunk_id, filename, size, worker_id, worker_address, upload_time)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_id, chunk_id) DO UPDATE SET
				filename = excluded.filename,
				size = excluded.size,
				worker_id = CASE WHEN excluded.worker_id != '' THEN excluded.worker_id ELSE file_metadata.worker_id END,
				worker_address = CASE WHEN excluded.worker_address != '' THEN excluded.worker_address ELSE file_metadata.worker_address END,
				upload_time = CASE WHEN excluded.worker_id != '' THEN excluded.upload_time ELSE file_metadata.upload_time END`,
			row.FileID, row.ChunkID, row.Filename, row.Size, row.WorkerID, row.WorkerAddress, uploadTime.Format(timeFormat))
		if err != nil {
			return fmt.Errorf("save placeholder metadata: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_metadata (file_id, chunk_id, filename, size, worker_id, worker_address, upload_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.FileID, row.ChunkID, row.Filename, row.Size, row.WorkerID, row.WorkerAddress, uploadTime.Format(timeFormat))
	if err != nil {
		if isUniqueViolation(err) {
			return metadata.ErrIntegrityViolation
		}
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(row *sql.Row) (metadata.Row, error) {
	return scanRowFrom(row)
}

func scanRowFrom(sc scanner) (metadata.Row, error) {
	var (
		r          metadata.Row
		uploadTime string
	)
	err := sc.Scan(&r.FileID, &r.ChunkID, &r.Filename, &r.Size, &r.WorkerID, &r.WorkerAddress, &uploadTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return metadata.Row{}, metadata.ErrNotFound
		}
		return metadata.Row{}, fmt.Errorf("scan file_metadata row: %w", err)
	}
	r.UploadTime, err = time.Parse(timeFormat, uploadTime)
	if err != nil {
		return metadata.Row{}, fmt.Errorf("parse upload_time: %w", err)
	}
	return r, nil
}
