package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// RecordEvent persists an event occurrence with upsert semantics.
func (s *Store) RecordEvent(ctx context.Context, event *types.Event) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}
	if event.CameraID == "" {
		return fmt.Errorf("%w: camera ID is required", storage.ErrInvalidInput)
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("%w: event timestamp is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, camera_id, occurred_at, thumbnail_ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT(id) DO UPDATE SET
			camera_id = excluded.camera_id,
			occurred_at = excluded.occurred_at,
			thumbnail_ref = excluded.thumbnail_ref
	`, event.ID, event.CameraID, event.Timestamp.UTC(), event.ThumbnailRef)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListEventTimestamps returns the timestamps of the camera's events at or
// after since, ascending.
func (s *Store) ListEventTimestamps(ctx context.Context, cameraID string, since time.Time) ([]time.Time, error) {
	if cameraID == "" {
		return nil, fmt.Errorf("%w: camera ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at FROM events
		WHERE camera_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC
	`, cameraID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list event timestamps: %w", err)
	}
	defer rows.Close()

	var timestamps []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan event timestamp: %w", err)
		}
		timestamps = append(timestamps, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return timestamps, nil
}

// ListCameraIDs returns the distinct camera IDs with recorded events.
func (s *Store) ListCameraIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT camera_id FROM events ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list camera IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan camera ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}
