package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// StoreEmbedding stores the embedding for an event. The vector is always
// written to the BYTEA column; when pgvector is available it is also written
// to embedding_vec for cosine-distance queries.
func (s *Store) StoreEmbedding(ctx context.Context, embedding *types.EventEmbedding) error {
	if embedding == nil || embedding.EventID == "" {
		return fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	blob := serializeVector(embedding.Vector)

	if s.pgvectorAvailable {
		vec := pgvector.NewVector(embedding.Vector)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO embeddings (event_id, vector, dimension, embedding_vec)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT(event_id) DO UPDATE SET
				vector = excluded.vector,
				dimension = excluded.dimension,
				embedding_vec = excluded.embedding_vec
		`, embedding.EventID, blob, len(embedding.Vector), vec)
		if err == nil {
			return nil
		}
		log.Printf("postgres: failed to store embedding_vec (falling back to BYTEA only): %v", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (event_id, vector, dimension)
		VALUES ($1, $2, $3)
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
		SELECT vector, dimension, created_at FROM embeddings WHERE event_id = $1
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
// excluding excludeEventID. When pgvector is available and a query vector is
// known from the excluded event, candidates come back ordered by cosine
// distance so a LIMIT prunes the far tail cheaply; otherwise they are
// ordered by recency. Callers must not rely on the ordering.
func (s *Store) ListCandidates(ctx context.Context, cameraID string, since time.Time, excludeEventID string, limit int) ([]types.EmbeddingCandidate, error) {
	if cameraID == "" {
		return nil, fmt.Errorf("%w: camera ID is required", storage.ErrInvalidInput)
	}

	if s.pgvectorAvailable && excludeEventID != "" {
		candidates, err := s.listCandidatesByDistance(ctx, cameraID, since, excludeEventID, limit)
		if err == nil {
			return candidates, nil
		}
		log.Printf("postgres: vector-ordered candidate query failed, falling back to recency order: %v", err)
	}

	query := `
		SELECT e.id, em.vector, em.dimension, e.occurred_at
		FROM embeddings em
		JOIN events e ON e.id = em.event_id
		WHERE e.camera_id = $1 AND e.occurred_at >= $2 AND e.id != $3
		ORDER BY e.occurred_at DESC
	`
	args := []interface{}{cameraID, since.UTC(), excludeEventID}
	if limit > 0 {
		query += " LIMIT $4"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list candidates: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// listCandidatesByDistance orders candidates by cosine distance to the
// excluded event's stored vector using the pgvector <=> operator.
func (s *Store) listCandidatesByDistance(ctx context.Context, cameraID string, since time.Time, excludeEventID string, limit int) ([]types.EmbeddingCandidate, error) {
	query := `
		SELECT e.id, em.vector, em.dimension, e.occurred_at
		FROM embeddings em
		JOIN events e ON e.id = em.event_id
		WHERE e.camera_id = $1 AND e.occurred_at >= $2 AND e.id != $3
			AND em.embedding_vec IS NOT NULL
		ORDER BY em.embedding_vec <=> (SELECT embedding_vec FROM embeddings WHERE event_id = $3)
	`
	args := []interface{}{cameraID, since.UTC(), excludeEventID}
	if limit > 0 {
		query += " LIMIT $4"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCandidates(rows)
}

// scanCandidates reads candidate rows. The SELECT column order must match
// both candidate queries above.
func scanCandidates(rows *sql.Rows) ([]types.EmbeddingCandidate, error) {
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
