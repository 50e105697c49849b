package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

const (
	// MinEventsForPattern is the minimum number of events in the window
	// before a usable pattern is calculated.
	MinEventsForPattern = 10

	// MinSpanForPattern is the minimum time the events must span.
	MinSpanForPattern = 7 * 24 * time.Hour

	// DefaultPatternWindowDays is the rolling window for recalculation.
	DefaultPatternWindowDays = 30
)

// Timing verdict reasons, rendered verbatim into prompt context.
const (
	ReasonInsufficientData = "insufficient data"
	ReasonQuietHour        = "normally quiet at this hour"
	ReasonPeakHour         = "typical activity time"
	ReasonAtypicalDay      = "less typical on this day"
	ReasonNormalPeriod     = "normal activity period"
)

// PatternAnalyzer computes and persists per-camera activity distributions
// and answers timing-typicality queries. Recalculation runs on a schedule
// decoupled from the request path; IsTypicalTiming reads the persisted row
// only, which keeps lookups well inside the composer's timing budget.
type PatternAnalyzer struct {
	events   storage.EventStore
	patterns storage.PatternStore
}

// NewPatternAnalyzer creates a pattern analyzer over the given stores.
func NewPatternAnalyzer(events storage.EventStore, patterns storage.PatternStore) (*PatternAnalyzer, error) {
	if events == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if patterns == nil {
		return nil, fmt.Errorf("pattern store is required")
	}
	return &PatternAnalyzer{events: events, patterns: patterns}, nil
}

// Recalculate rebuilds the activity pattern for a camera over the given
// rolling window and upserts the persisted row. Cameras with fewer than
// MinEventsForPattern events, or whose events span less than
// MinSpanForPattern, get a row flagged insufficient_data.
func (p *PatternAnalyzer) Recalculate(ctx context.Context, cameraID string, windowDays int) error {
	if cameraID == "" {
		return fmt.Errorf("%w: camera ID is required", storage.ErrInvalidInput)
	}
	if windowDays <= 0 {
		windowDays = DefaultPatternWindowDays
	}

	now := time.Now()
	since := now.AddDate(0, 0, -windowDays)

	timestamps, err := p.events.ListEventTimestamps(ctx, cameraID, since)
	if err != nil {
		return fmt.Errorf("pattern: failed to list events for camera %s: %w", cameraID, err)
	}

	pattern := computePattern(cameraID, timestamps, windowDays, now)
	if err := p.patterns.UpsertPattern(ctx, pattern); err != nil {
		return fmt.Errorf("pattern: failed to upsert pattern for camera %s: %w", cameraID, err)
	}

	if pattern.InsufficientData {
		log.Printf("pattern: camera %s has insufficient data (%d events)", cameraID, len(timestamps))
	} else {
		log.Printf("pattern: recalculated camera %s (%d events, %d peak hours, %d quiet hours)",
			cameraID, len(timestamps), len(pattern.PeakHours), len(pattern.QuietHours))
	}
	return nil
}

// RecalculateStale recalculates only when the persisted pattern is older
// than minAge. This is the self-concurrency guard for the periodic worker:
// overlapping recalculations of the same camera are skipped instead of
// racing. Returns true when a recalculation was performed.
func (p *PatternAnalyzer) RecalculateStale(ctx context.Context, cameraID string, windowDays int, minAge time.Duration) (bool, error) {
	existing, err := p.patterns.GetPattern(ctx, cameraID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("pattern: freshness check failed for camera %s: %w", cameraID, err)
	}
	if existing != nil && time.Since(existing.LastCalculatedAt) < minAge {
		return false, nil
	}
	if err := p.Recalculate(ctx, cameraID, windowDays); err != nil {
		return false, err
	}
	return true, nil
}

// IsTypicalTiming answers whether the given timestamp is a typical activity
// time for the camera, evaluated purely against the persisted pattern.
//
// Decision order: no/insufficient pattern -> unknown; quiet hour -> not
// typical (0.8); peak hour -> typical (0.9); weekday activity under half
// the daily mean -> not typical (0.6); otherwise typical (0.5).
func (p *PatternAnalyzer) IsTypicalTiming(ctx context.Context, cameraID string, ts time.Time) (*types.TimingVerdict, error) {
	if cameraID == "" {
		return nil, fmt.Errorf("%w: camera ID is required", storage.ErrInvalidInput)
	}

	pattern, err := p.patterns.GetPattern(ctx, cameraID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &types.TimingVerdict{IsTypical: nil, Confidence: 0, Reason: ReasonInsufficientData}, nil
		}
		return nil, fmt.Errorf("pattern: failed to load pattern for camera %s: %w", cameraID, err)
	}

	if pattern.InsufficientData {
		return &types.TimingVerdict{IsTypical: nil, Confidence: 0, Reason: ReasonInsufficientData}, nil
	}

	// Bucket in the same zone computePattern uses, so a timestamp carrying
	// a different offset (UTC from the store, camera-local from a client)
	// lands in the hour it was counted under.
	local := ts.Local()
	hour := local.Hour()
	if pattern.IsQuietHour(hour) {
		return verdict(false, 0.8, ReasonQuietHour), nil
	}
	if pattern.IsPeakHour(hour) {
		return verdict(true, 0.9, ReasonPeakHour), nil
	}

	var dailyTotal int
	for _, c := range pattern.DailyDistribution {
		dailyTotal += c
	}
	meanDaily := float64(dailyTotal) / types.DaysPerWeek
	if float64(pattern.DailyDistribution[int(local.Weekday())]) < 0.5*meanDaily {
		return verdict(false, 0.6, ReasonAtypicalDay), nil
	}

	return verdict(true, 0.5, ReasonNormalPeriod), nil
}

func verdict(typical bool, confidence float64, reason string) *types.TimingVerdict {
	return &types.TimingVerdict{IsTypical: &typical, Confidence: confidence, Reason: reason}
}

// computePattern aggregates event timestamps into an activity pattern.
func computePattern(cameraID string, timestamps []time.Time, windowDays int, now time.Time) *types.CameraActivityPattern {
	pattern := &types.CameraActivityPattern{
		CameraID:         cameraID,
		WindowDays:       windowDays,
		PeakHours:        []int{},
		QuietHours:       []int{},
		LastCalculatedAt: now,
	}

	if len(timestamps) < MinEventsForPattern || span(timestamps) < MinSpanForPattern {
		pattern.InsufficientData = true
		return pattern
	}

	for _, ts := range timestamps {
		local := ts.Local()
		pattern.HourlyDistribution[local.Hour()]++
		pattern.DailyDistribution[int(local.Weekday())]++
	}

	mean, stddev := meanStddev(pattern.HourlyDistribution[:])
	maxHourly := 0
	for _, c := range pattern.HourlyDistribution {
		if c > maxHourly {
			maxHourly = c
		}
	}

	peakCutoff := mean + 0.5*stddev
	quietCutoff := 0.1 * float64(maxHourly)
	for h, c := range pattern.HourlyDistribution {
		if float64(c) > peakCutoff {
			pattern.PeakHours = append(pattern.PeakHours, h)
		}
	}
	// Quiet hours are computed after peak hours and exclude them, which
	// keeps the two sets disjoint even for degenerate distributions.
	for h, c := range pattern.HourlyDistribution {
		if float64(c) < quietCutoff && !pattern.IsPeakHour(h) {
			pattern.QuietHours = append(pattern.QuietHours, h)
		}
	}

	pattern.AverageEventsPerDay = float64(len(timestamps)) / float64(windowDays)
	return pattern
}

// span returns the time between the earliest and latest timestamps.
// Timestamps arrive sorted ascending from the store, but a full scan keeps
// this correct for any input.
func span(timestamps []time.Time) time.Duration {
	if len(timestamps) == 0 {
		return 0
	}
	earliest, latest := timestamps[0], timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts.Before(earliest) {
			earliest = ts
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest.Sub(earliest)
}

// meanStddev returns the mean and population standard deviation of counts.
func meanStddev(counts []int) (float64, float64) {
	if len(counts) == 0 {
		return 0, 0
	}
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	mean := sum / float64(len(counts))

	var varSum float64
	for _, c := range counts {
		d := float64(c) - mean
		varSum += d * d
	}
	return mean, math.Sqrt(varSum / float64(len(counts)))
}
