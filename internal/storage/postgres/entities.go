package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// CreateEntity inserts a new entity row.
func (s *Store) CreateEntity(ctx context.Context, entity *types.Entity) error {
	if entity == nil || entity.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if !entity.Type.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", storage.ErrInvalidInput, entity.Type)
	}
	if len(entity.RepresentativeVector) == 0 {
		return fmt.Errorf("%w: representative vector is required", storage.ErrInvalidInput)
	}

	blob := serializeVector(entity.RepresentativeVector)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, type, display_name, representative_vector, dimension,
			occurrence_count, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entity.ID, string(entity.Type), entity.DisplayName, blob, len(entity.RepresentativeVector),
		entity.OccurrenceCount, entity.FirstSeenAt.UTC(), entity.LastSeenAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, display_name, representative_vector, dimension,
			occurrence_count, first_seen_at, last_seen_at, created_at, updated_at
		FROM entities WHERE id = $1
	`, id)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// ListEntitiesByType returns all entities of the given type with their
// representative vectors.
func (s *Store) ListEntitiesByType(ctx context.Context, entityType types.EntityType) ([]*types.Entity, error) {
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", storage.ErrInvalidInput, entityType)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, display_name, representative_vector, dimension,
			occurrence_count, first_seen_at, last_seen_at, created_at, updated_at
		FROM entities WHERE type = $1
	`, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var entities []*types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entities, nil
}

// ApplyMatch updates the matched entity in a single statement. The counter
// increment happens inside the UPDATE so concurrent matches never lose
// counts; the vector and last_seen_at are last-write-wins.
func (s *Store) ApplyMatch(ctx context.Context, entityID string, update storage.EntityMatchUpdate) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if len(update.RepresentativeVector) == 0 {
		return fmt.Errorf("%w: representative vector is required", storage.ErrInvalidInput)
	}

	blob := serializeVector(update.RepresentativeVector)

	result, err := s.db.ExecContext(ctx, `
		UPDATE entities SET
			representative_vector = $1,
			dimension = $2,
			occurrence_count = occurrence_count + 1,
			last_seen_at = $3,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
	`, blob, len(update.RepresentativeVector), update.LastSeenAt.UTC(), entityID)
	if err != nil {
		return fmt.Errorf("failed to apply match: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LinkEntityEvent inserts the attribution row for a matched or created
// event. Returns false when the link already exists.
func (s *Store) LinkEntityEvent(ctx context.Context, link *types.EntityEventLink) (bool, error) {
	if link == nil || link.EventID == "" || link.EntityID == "" {
		return false, fmt.Errorf("%w: event ID and entity ID are required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_event_links (event_id, entity_id, similarity_score)
		VALUES ($1, $2, $3)
		ON CONFLICT(event_id, entity_id) DO NOTHING
	`, link.EventID, link.EntityID, link.SimilarityScore)
	if err != nil {
		return false, fmt.Errorf("failed to link entity event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountEntityLinks returns the number of link rows for an entity.
func (s *Store) CountEntityLinks(ctx context.Context, entityID string) (int, error) {
	if entityID == "" {
		return 0, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entity_event_links WHERE entity_id = $1`, entityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entity links: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntity reads one entity row. The SELECT column order must match the
// order used in GetEntity and ListEntitiesByType.
func scanEntity(row rowScanner) (*types.Entity, error) {
	var entity types.Entity
	var entityType string
	var blob []byte
	var dimension int

	err := row.Scan(
		&entity.ID,
		&entityType,
		&entity.DisplayName,
		&blob,
		&dimension,
		&entity.OccurrenceCount,
		&entity.FirstSeenAt,
		&entity.LastSeenAt,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entity.Type = types.EntityType(entityType)
	vector, err := deserializeVector(blob, dimension)
	if err != nil {
		return nil, err
	}
	entity.RepresentativeVector = vector

	return &entity, nil
}
