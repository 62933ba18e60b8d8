package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Days are stored as YYYY-MM-DD text so range comparisons stay lexical.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS collections (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id            TEXT     UNIQUE NOT NULL,
		name                   TEXT     NOT NULL DEFAULT '',
		custom_name            TEXT     NOT NULL DEFAULT '',
		url                    TEXT     NOT NULL DEFAULT '',
		is_active              BOOLEAN  NOT NULL DEFAULT 1,
		update_status          TEXT     NOT NULL DEFAULT 'idle',
		last_updated           DATETIME,
		update_started_at      DATETIME,
		update_completed_at    DATETIME,
		last_successful_update DATETIME,
		created_at             DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tracks (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
		external_id   TEXT    NOT NULL,
		name          TEXT    NOT NULL DEFAULT '',
		artist        TEXT    NOT NULL DEFAULT '',
		url           TEXT    NOT NULL DEFAULT '',
		UNIQUE (collection_id, external_id)
	);

	CREATE TABLE IF NOT EXISTS daily_records (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		track_id       INTEGER  NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
		day            TEXT     NOT NULL,
		total_count    INTEGER  NOT NULL,
		daily_delta    INTEGER  NOT NULL DEFAULT 0,
		weekly_sum     INTEGER  NOT NULL DEFAULT 0,
		monthly_sum    INTEGER  NOT NULL DEFAULT 0,
		classification TEXT     NOT NULL,
		is_hidden      BOOLEAN  NOT NULL DEFAULT 0,
		is_simulated   BOOLEAN  NOT NULL DEFAULT 0,
		method         TEXT     NOT NULL,
		confidence     REAL,
		recorded_at    DATETIME NOT NULL,
		UNIQUE (track_id, day)
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at      DATETIME NOT NULL,
		status          TEXT NOT NULL,
		message         TEXT NOT NULL DEFAULT '',
		collection_name TEXT NOT NULL DEFAULT '',
		error_details   TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_collection   ON tracks(collection_id);
	CREATE INDEX IF NOT EXISTS idx_daily_records_day   ON daily_records(day);
	CREATE INDEX IF NOT EXISTS idx_run_logs_created_at ON run_logs(created_at);
`

// NewSQLiteStore opens (or creates) an embedded SQLite ledger at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return newSQLStore(db, dialect{name: "sqlite", schema: sqliteSchema})
}
