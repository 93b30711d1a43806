// Package catalog provides the SQLite artifact catalog.
package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/jobrunner/geoexport/internal/domain"
)

const driverName = "sqlite3_catalog"

// Register the sqlite3 driver with per-connection pragmas.
func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			_, err := conn.Exec("PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;", []driver.Value{})
			return err
		},
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	name         TEXT PRIMARY KEY,
	path         TEXT NOT NULL,
	archive_path TEXT NOT NULL DEFAULT '',
	size         INTEGER NOT NULL,
	digest       TEXT NOT NULL,
	source       TEXT NOT NULL,
	image        TEXT NOT NULL,
	mode         TEXT NOT NULL,
	tile         INTEGER NOT NULL DEFAULT 0,
	resolution   REAL NOT NULL,
	bands        TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS artifacts_created_at ON artifacts (created_at);
`

// timeLayout is fixed width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const columns = `name, path, archive_path, size, digest, source, image, mode, tile, resolution, bands, created_at`

// Catalog implements output.ArtifactCatalog on a SQLite database.
type Catalog struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens or creates the catalog database at path.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate", path)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Record inserts or replaces the entry for an artifact. A skipped artifact
// never overwrites the entry of the run that produced the file.
func (c *Catalog) Record(ctx context.Context, rec domain.ArtifactRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	verb := "INSERT OR REPLACE"
	if rec.Skipped {
		verb = "INSERT OR IGNORE"
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := verb + ` INTO artifacts (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := c.db.ExecContext(ctx, query,
		rec.Name,
		rec.Path,
		rec.ArchivePath,
		rec.Size,
		rec.Digest,
		rec.Source,
		string(rec.Image),
		string(rec.Mode),
		rec.Tile,
		rec.Resolution,
		strings.Join(rec.Bands, ","),
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return &domain.StorageError{Operation: "record", Key: rec.Name, Err: err}
	}
	return nil
}

// List returns all recorded artifacts, newest first.
func (c *Catalog) List(ctx context.Context) ([]domain.ArtifactRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+columns+` FROM artifacts ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}
	defer func() { _ = rows.Close() }()

	records := []domain.ArtifactRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}
	return records, nil
}

// Get returns the record for an artifact name.
func (c *Catalog) Get(ctx context.Context, name string) (*domain.ArtifactRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+columns+` FROM artifacts WHERE name = ?`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Remove deletes the record for an artifact name.
func (c *Catalog) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM artifacts WHERE name = ?`, name)
	if err != nil {
		return &domain.StorageError{Operation: "remove", Key: name, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StorageError{Operation: "remove", Key: name, Err: err}
	}
	if n == 0 {
		return domain.ErrArtifactNotFound
	}
	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.ArtifactRecord, error) {
	var (
		rec       domain.ArtifactRecord
		image     string
		mode      string
		bands     string
		createdAt string
	)
	err := s.Scan(
		&rec.Name,
		&rec.Path,
		&rec.ArchivePath,
		&rec.Size,
		&rec.Digest,
		&rec.Source,
		&image,
		&mode,
		&rec.Tile,
		&rec.Resolution,
		&bands,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, &domain.StorageError{Operation: "scan", Err: err}
	}

	rec.Image = domain.ImageRef(image)
	rec.Mode = domain.ExportMode(mode)
	if bands != "" {
		rec.Bands = domain.BandSet(strings.Split(bands, ","))
	}
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}
