// Package store persists confirmed places and import run history.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Place is a confirmed, geocoded place as persisted.
type Place struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
}

// SQLiteStore implements place persistence using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS places (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS import_runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	candidates   INTEGER NOT NULL DEFAULT 0,
	confirmed    INTEGER NOT NULL DEFAULT 0,
	completed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_places_name ON places(name);
CREATE INDEX IF NOT EXISTS idx_import_runs_completed_at ON import_runs(completed_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SavePlace inserts a confirmed place as a (name, latitude, longitude) tuple.
func (s *SQLiteStore) SavePlace(ctx context.Context, name string, latitude, longitude float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO places (id, name, latitude, longitude, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), name, latitude, longitude, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert place %q", name)
}

// ListPlaces returns persisted places, newest first.
func (s *SQLiteStore) ListPlaces(ctx context.Context, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, latitude, longitude, created_at FROM places ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list places")
	}
	defer rows.Close()

	var places []Place
	for rows.Next() {
		var p Place
		if err := rows.Scan(&p.ID, &p.Name, &p.Latitude, &p.Longitude, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan place")
		}
		places = append(places, p)
	}
	return places, eris.Wrap(rows.Err(), "sqlite: iterate places")
}

// RecordImportRun logs a completed import run for audit history.
func (s *SQLiteStore) RecordImportRun(ctx context.Context, source string, candidates, confirmed int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, source, candidates, confirmed, completed_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), source, candidates, confirmed, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: record import run")
}
