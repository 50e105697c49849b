package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// StoreEmbedding stores the embedding for an event (upsert on event ID).
func (s *Store) StoreEmbedding(ctx context.Context, embedding *types.EventEmbedding) error {
	if embedding == nil || embedding.EventID == "" {
		return fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	blob := serializeVector(embedding.Vector)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (event_id, vector, dimension)
		VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension
	`, embedding.EventID, blob, len(embedding.Vector))
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// GetEmbedding retrieves the embedding for an event.
func (s *Store) GetEmbedding(ctx context.Context, eventID string) (*types.EventEmbedding, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}

	var blob []byte
	var dimension int
	var createdAt time.Time

	err := s.db.QueryRowContext(ctx, `
		SELECT vector, dimension, created_at FROM embeddings WHERE event_id = ?
	`, eventID).Scan(&blob, &dimension, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	vector, err := deserializeVector(blob, dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize embedding: %w", err)
	}

	return &types.EventEmbedding{
		EventID:   eventID,
		Vector:    vector,
		CreatedAt: createdAt,
	}, nil
}

// ListCandidates returns embeddings of the camera's events at or after since,
// excluding excludeEventID, most recent first.
func (s *Store) ListCandidates(ctx context.Context, cameraID string, since time.Time, excludeEventID string, limit int) ([]types.EmbeddingCandidate, error) {
	if cameraID == "" {
		return nil, fmt.Errorf("%w: camera ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT e.id, em.vector, em.dimension, e.occurred_at
		FROM embeddings em
		JOIN events e ON e.id = em.event_id
		WHERE e.camera_id = ? AND e.occurred_at >= ? AND e.id != ?
		ORDER BY e.occurred_at DESC
	`
	args := []interface{}{cameraID, since.UTC(), excludeEventID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list candidates: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	var candidates []types.EmbeddingCandidate
	for rows.Next() {
		var c types.EmbeddingCandidate
		var blob []byte
		var dimension int
		if err := rows.Scan(&c.EventID, &blob, &dimension, &c.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		vector, err := deserializeVector(blob, dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize candidate %s: %w", c.EventID, err)
		}
		c.Vector = vector
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return candidates, nil
}
