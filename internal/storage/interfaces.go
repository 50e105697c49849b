// Package storage provides composable storage interfaces for the Hindsight
// context engine.
//
// The layer is split into small, focused interfaces that can be implemented
// independently and composed as needed. Both backends (SQLite and PostgreSQL)
// implement the full Store; components depend only on the slice they use.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/hindsight/pkg/types"
)

// EventStore records event occurrences and serves the raw timestamps the
// pattern analyzer aggregates over.
type EventStore interface {
	// RecordEvent persists an event occurrence (upsert on event ID).
	RecordEvent(ctx context.Context, event *types.Event) error

	// ListEventTimestamps returns the timestamps of all events for the
	// camera occurring at or after since, in ascending order. Returns an
	// empty slice (not an error) for an unknown camera.
	ListEventTimestamps(ctx context.Context, cameraID string, since time.Time) ([]time.Time, error)

	// ListCameraIDs returns the distinct camera IDs with at least one
	// recorded event. Used by the pattern recalculation worker.
	ListCameraIDs(ctx context.Context) ([]string, error)
}

// EmbeddingStore stores and retrieves one fixed-length vector per event.
// It performs no transformation of the vectors.
type EmbeddingStore interface {
	// StoreEmbedding stores the embedding for an event. Embeddings are
	// immutable; storing twice for the same event is an upsert that must
	// carry the identical vector.
	StoreEmbedding(ctx context.Context, embedding *types.EventEmbedding) error

	// GetEmbedding retrieves the embedding for an event.
	// Returns ErrNotFound if no embedding exists.
	GetEmbedding(ctx context.Context, eventID string) (*types.EventEmbedding, error)

	// ListCandidates returns embeddings of the camera's events occurring at
	// or after since, excluding excludeEventID, in one batch. Backends with
	// vector indexes may pre-order candidates by distance to query; callers
	// must not rely on any ordering. limit <= 0 means no limit.
	ListCandidates(ctx context.Context, cameraID string, since time.Time, excludeEventID string, limit int) ([]types.EmbeddingCandidate, error)
}

// EntityStore persists recurring entities and their event links.
type EntityStore interface {
	// CreateEntity inserts a new entity.
	CreateEntity(ctx context.Context, entity *types.Entity) error

	// GetEntity retrieves an entity by ID. Returns ErrNotFound if absent.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// ListEntitiesByType returns all entities of the given type, including
	// their representative vectors.
	ListEntitiesByType(ctx context.Context, entityType types.EntityType) ([]*types.Entity, error)

	// ApplyMatch updates the matched entity in one statement: replaces the
	// representative vector, sets last_seen_at, and increments
	// occurrence_count atomically. Returns ErrNotFound if the entity
	// does not exist.
	ApplyMatch(ctx context.Context, entityID string, update EntityMatchUpdate) error

	// LinkEntityEvent inserts the event-to-entity attribution row. Returns
	// false when the link already exists, so callers can keep occurrence
	// counters in step with link rows on replayed events.
	LinkEntityEvent(ctx context.Context, link *types.EntityEventLink) (bool, error)

	// CountEntityLinks returns the number of link rows for an entity.
	CountEntityLinks(ctx context.Context, entityID string) (int, error)
}

// PatternStore persists per-camera activity patterns.
type PatternStore interface {
	// UpsertPattern writes the pattern row for a camera, replacing any
	// previous row.
	UpsertPattern(ctx context.Context, pattern *types.CameraActivityPattern) error

	// GetPattern retrieves the persisted pattern for a camera.
	// Returns ErrNotFound if the camera has never been calculated.
	GetPattern(ctx context.Context, cameraID string) (*types.CameraActivityPattern, error)
}

// SettingsStore persists runtime settings as string key/value pairs.
type SettingsStore interface {
	// LoadSettings returns all stored settings.
	LoadSettings(ctx context.Context) (map[string]string, error)

	// SaveSetting upserts one setting.
	SaveSetting(ctx context.Context, key, value string) error
}

// Store is the composed interface both backends implement.
type Store interface {
	EventStore
	EmbeddingStore
	EntityStore
	PatternStore
	SettingsStore

	// Close releases any resources held by the store.
	Close() error
}
