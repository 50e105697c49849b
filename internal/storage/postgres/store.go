// Package postgres implements the storage interfaces on PostgreSQL via
// lib/pq. When the pgvector extension is available, embeddings are stored
// in a vector column in addition to BYTEA so candidate retrieval can be
// ordered by cosine distance in SQL.
package postgres

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Schema creates all tables used by the context engine.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    camera_id TEXT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    thumbnail_ref TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_camera_time ON events(camera_id, occurred_at);

CREATE TABLE IF NOT EXISTS embeddings (
    event_id TEXT PRIMARY KEY REFERENCES events(id),
    vector BYTEA NOT NULL,
    dimension INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    representative_vector BYTEA NOT NULL,
    dimension INTEGER NOT NULL,
    occurrence_count INTEGER NOT NULL DEFAULT 1,
    first_seen_at TIMESTAMPTZ NOT NULL,
    last_seen_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

CREATE TABLE IF NOT EXISTS entity_event_links (
    event_id TEXT NOT NULL,
    entity_id TEXT NOT NULL REFERENCES entities(id),
    similarity_score DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (event_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_links_entity ON entity_event_links(entity_id);

CREATE TABLE IF NOT EXISTS camera_activity_patterns (
    camera_id TEXT PRIMARY KEY,
    hourly_distribution JSONB NOT NULL,
    daily_distribution JSONB NOT NULL,
    peak_hours JSONB NOT NULL,
    quiet_hours JSONB NOT NULL,
    average_events_per_day DOUBLE PRECISION NOT NULL,
    window_days INTEGER NOT NULL,
    insufficient_data BOOLEAN NOT NULL DEFAULT FALSE,
    last_calculated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// MigrationPgvector adds the vector column used for cosine-distance ordered
// candidate retrieval. Applied only when the vector extension is available;
// safe to run multiple times.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'embeddings' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE embeddings ADD COLUMN embedding_vec vector;
    END IF;
END
$$;

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_embeddings_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM embeddings LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_embeddings_vec_cosine ON embeddings USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// NewStore opens a PostgreSQL connection, creates the schema, and probes for
// the pgvector extension. Missing pgvector is not an error: the store falls
// back to BYTEA-only embedding storage with in-process similarity scoring.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension unavailable, using BYTEA-only embeddings: %v", err)
		s.pgvectorAvailable = false
	} else {
		s.pgvectorAvailable = true
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if s.pgvectorAvailable {
		if _, err := db.Exec(MigrationPgvector); err != nil {
			log.Printf("postgres: pgvector migration failed, using BYTEA-only embeddings: %v", err)
			s.pgvectorAvailable = false
		}
	}

	return s, nil
}

// PgvectorAvailable reports whether the vector column is in use.
func (s *Store) PgvectorAvailable() bool {
	return s.pgvectorAvailable
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
