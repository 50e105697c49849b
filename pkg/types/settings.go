package types

import (
	"fmt"
	"time"
)

// Default context settings. Used when no stored value exists or a stored
// value fails validation.
const (
	DefaultSimilarityThreshold   = 0.7
	DefaultTimeWindowDays        = 30
	DefaultABTestSkipPercent     = 0
	DefaultPatternRecalcInterval = time.Hour
)

// Settings is the immutable snapshot of context-engine settings consumed by
// the composer on every build. How settings are edited and persisted is
// outside this subsystem; callers receive a value copy and never observe
// concurrent mutation.
type Settings struct {
	// EnableContext is the master feature flag. When false, Build returns
	// the base prompt unchanged.
	EnableContext bool `json:"enable_context"`

	// ABTestSkipPercent is the percentage of events (0-100) for which
	// context injection is randomly omitted, for A/B comparison.
	ABTestSkipPercent int `json:"ab_test_skip_percent"`

	// SimilarityThreshold is the minimum cosine similarity for a score to
	// influence entity matching or similarity context.
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// TimeWindowDays is the rolling window for similarity search and
	// pattern calculation.
	TimeWindowDays int `json:"time_window_days"`

	// PatternRecalcInterval is how often camera activity patterns are
	// recalculated by the background worker.
	PatternRecalcInterval time.Duration `json:"pattern_recalc_interval"`
}

// DefaultSettings returns the compiled-in defaults.
func DefaultSettings() Settings {
	return Settings{
		EnableContext:         true,
		ABTestSkipPercent:     DefaultABTestSkipPercent,
		SimilarityThreshold:   DefaultSimilarityThreshold,
		TimeWindowDays:        DefaultTimeWindowDays,
		PatternRecalcInterval: DefaultPatternRecalcInterval,
	}
}

// Validate checks the snapshot for malformed values.
func (s Settings) Validate() error {
	if s.ABTestSkipPercent < 0 || s.ABTestSkipPercent > 100 {
		return fmt.Errorf("ab_test_skip_percent must be in [0,100], got %d", s.ABTestSkipPercent)
	}
	if s.SimilarityThreshold < -1 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [-1,1], got %f", s.SimilarityThreshold)
	}
	if s.TimeWindowDays < 1 {
		return fmt.Errorf("time_window_days must be >= 1, got %d", s.TimeWindowDays)
	}
	if s.PatternRecalcInterval <= 0 {
		return fmt.Errorf("pattern_recalc_interval must be > 0, got %v", s.PatternRecalcInterval)
	}
	return nil
}
