package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS collections (
		id                     BIGSERIAL PRIMARY KEY,
		external_id            TEXT        UNIQUE NOT NULL,
		name                   TEXT        NOT NULL DEFAULT '',
		custom_name            TEXT        NOT NULL DEFAULT '',
		url                    TEXT        NOT NULL DEFAULT '',
		is_active              BOOLEAN     NOT NULL DEFAULT TRUE,
		update_status          VARCHAR(20) NOT NULL DEFAULT 'idle',
		last_updated           TIMESTAMPTZ,
		update_started_at      TIMESTAMPTZ,
		update_completed_at    TIMESTAMPTZ,
		last_successful_update TIMESTAMPTZ,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS tracks (
		id            BIGSERIAL PRIMARY KEY,
		collection_id BIGINT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
		external_id   TEXT   NOT NULL,
		name          TEXT   NOT NULL DEFAULT '',
		artist        TEXT   NOT NULL DEFAULT '',
		url           TEXT   NOT NULL DEFAULT '',
		UNIQUE (collection_id, external_id)
	);

	CREATE TABLE IF NOT EXISTS daily_records (
		id             BIGSERIAL PRIMARY KEY,
		track_id       BIGINT      NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
		day            DATE        NOT NULL,
		total_count    BIGINT      NOT NULL,
		daily_delta    BIGINT      NOT NULL DEFAULT 0,
		weekly_sum     BIGINT      NOT NULL DEFAULT 0,
		monthly_sum    BIGINT      NOT NULL DEFAULT 0,
		classification VARCHAR(16) NOT NULL,
		is_hidden      BOOLEAN     NOT NULL DEFAULT FALSE,
		is_simulated   BOOLEAN     NOT NULL DEFAULT FALSE,
		method         VARCHAR(20) NOT NULL,
		confidence     DOUBLE PRECISION,
		recorded_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (track_id, day)
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id              BIGSERIAL PRIMARY KEY,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		status          VARCHAR(20) NOT NULL,
		message         TEXT NOT NULL DEFAULT '',
		collection_name TEXT NOT NULL DEFAULT '',
		error_details   TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_collection   ON tracks(collection_id);
	CREATE INDEX IF NOT EXISTS idx_daily_records_day   ON daily_records(day);
	CREATE INDEX IF NOT EXISTS idx_run_logs_created_at ON run_logs(created_at);
`

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	return newSQLStore(db, dialect{name: "postgres", numbered: true, schema: postgresSchema})
}
