// Package sqlite implements the storage interfaces on SQLite via
// modernc.org/sqlite. It is the default backend: zero external services,
// WAL mode for read concurrency, and a single write connection to avoid
// SQLITE_BUSY under concurrent event processing.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// Schema creates all tables used by the context engine.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	camera_id     TEXT NOT NULL,
	occurred_at   TIMESTAMP NOT NULL,
	thumbnail_ref TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_camera_time ON events(camera_id, occurred_at);

CREATE TABLE IF NOT EXISTS embeddings (
	event_id   TEXT PRIMARY KEY REFERENCES events(id),
	vector     BLOB NOT NULL,
	dimension  INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
	id                    TEXT PRIMARY KEY,
	type                  TEXT NOT NULL,
	display_name          TEXT NOT NULL DEFAULT '',
	representative_vector BLOB NOT NULL,
	dimension             INTEGER NOT NULL,
	occurrence_count      INTEGER NOT NULL DEFAULT 1,
	first_seen_at         TIMESTAMP NOT NULL,
	last_seen_at          TIMESTAMP NOT NULL,
	created_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

CREATE TABLE IF NOT EXISTS entity_event_links (
	event_id         TEXT NOT NULL,
	entity_id        TEXT NOT NULL REFERENCES entities(id),
	similarity_score REAL NOT NULL,
	created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (event_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_links_entity ON entity_event_links(entity_id);

CREATE TABLE IF NOT EXISTS camera_activity_patterns (
	camera_id              TEXT PRIMARY KEY,
	hourly_distribution    TEXT NOT NULL,
	daily_distribution     TEXT NOT NULL,
	peak_hours             TEXT NOT NULL,
	quiet_hours            TEXT NOT NULL,
	average_events_per_day REAL NOT NULL,
	window_days            INTEGER NOT NULL,
	insufficient_data      INTEGER NOT NULL DEFAULT 0,
	last_calculated_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode and creates the
// schema. Use ":memory:" for an ephemeral store in tests.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent
	// event processing. WAL mode lets readers proceed without blocking
	// the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait instead of failing immediately when the connection is held by
	// another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
