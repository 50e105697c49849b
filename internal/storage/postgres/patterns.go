package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// UpsertPattern writes the pattern row for a camera, replacing any previous row.
func (s *Store) UpsertPattern(ctx context.Context, pattern *types.CameraActivityPattern) error {
	if pattern == nil || pattern.CameraID == "" {
		return fmt.Errorf("%w: camera ID is required", storage.ErrInvalidInput)
	}

	hourly, err := json.Marshal(pattern.HourlyDistribution)
	if err != nil {
		return fmt.Errorf("failed to marshal hourly distribution: %w", err)
	}
	daily, err := json.Marshal(pattern.DailyDistribution)
	if err != nil {
		return fmt.Errorf("failed to marshal daily distribution: %w", err)
	}
	peak, err := json.Marshal(hoursOrEmpty(pattern.PeakHours))
	if err != nil {
		return fmt.Errorf("failed to marshal peak hours: %w", err)
	}
	quiet, err := json.Marshal(hoursOrEmpty(pattern.QuietHours))
	if err != nil {
		return fmt.Errorf("failed to marshal quiet hours: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO camera_activity_patterns (camera_id, hourly_distribution, daily_distribution,
			peak_hours, quiet_hours, average_events_per_day, window_days, insufficient_data, last_calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT(camera_id) DO UPDATE SET
			hourly_distribution = excluded.hourly_distribution,
			daily_distribution = excluded.daily_distribution,
			peak_hours = excluded.peak_hours,
			quiet_hours = excluded.quiet_hours,
			average_events_per_day = excluded.average_events_per_day,
			window_days = excluded.window_days,
			insufficient_data = excluded.insufficient_data,
			last_calculated_at = excluded.last_calculated_at
	`, pattern.CameraID, string(hourly), string(daily), string(peak), string(quiet),
		pattern.AverageEventsPerDay, pattern.WindowDays, pattern.InsufficientData,
		pattern.LastCalculatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert pattern: %w", err)
	}
	return nil
}

// GetPattern retrieves the persisted pattern for a camera.
func (s *Store) GetPattern(ctx context.Context, cameraID string) (*types.CameraActivityPattern, error) {
	if cameraID == "" {
		return nil, fmt.Errorf("%w: camera ID is required", storage.ErrInvalidInput)
	}

	var pattern types.CameraActivityPattern
	var hourly, daily, peak, quiet []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT camera_id, hourly_distribution, daily_distribution, peak_hours, quiet_hours,
			average_events_per_day, window_days, insufficient_data, last_calculated_at
		FROM camera_activity_patterns WHERE camera_id = $1
	`, cameraID).Scan(
		&pattern.CameraID,
		&hourly,
		&daily,
		&peak,
		&quiet,
		&pattern.AverageEventsPerDay,
		&pattern.WindowDays,
		&pattern.InsufficientData,
		&pattern.LastCalculatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get pattern: %v", storage.ErrUnavailable, err)
	}

	if err := json.Unmarshal(hourly, &pattern.HourlyDistribution); err != nil {
		return nil, fmt.Errorf("unmarshal hourly distribution: %w", err)
	}
	if err := json.Unmarshal(daily, &pattern.DailyDistribution); err != nil {
		return nil, fmt.Errorf("unmarshal daily distribution: %w", err)
	}
	if err := json.Unmarshal(peak, &pattern.PeakHours); err != nil {
		return nil, fmt.Errorf("unmarshal peak hours: %w", err)
	}
	if err := json.Unmarshal(quiet, &pattern.QuietHours); err != nil {
		return nil, fmt.Errorf("unmarshal quiet hours: %w", err)
	}

	return &pattern, nil
}

// hoursOrEmpty normalizes a nil hour set to an empty slice so the stored
// JSON is always an array.
func hoursOrEmpty(hours []int) []int {
	if hours == nil {
		return []int{}
	}
	return hours
}
