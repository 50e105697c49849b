// Package engine implements the temporal context engine: similarity search
// over event embeddings, recurring-entity matching, activity pattern
// analysis, and context-bundle composition. The composer orchestrates the
// other components under per-operation timeouts so a slow or failing piece
// degrades to "no context" instead of blocking description generation.
package engine

import (
	"fmt"
	"time"
)

// Config holds tuning knobs for the context engine. These are deployment
// configuration, distinct from the per-call settings snapshot (feature flag,
// thresholds, window) which may change at runtime.
type Config struct {
	// MaxCandidates caps the number of candidate embeddings fetched per
	// similarity search (default: 10000).
	MaxCandidates int

	// SimilarLimit is the maximum number of similar events returned per
	// search (default: 20).
	SimilarLimit int

	// SimilarityTimeout bounds the similarity sub-step of a build
	// (default: 150ms).
	SimilarityTimeout time.Duration

	// TimingTimeout bounds the pattern lookup sub-step (default: 50ms).
	TimingTimeout time.Duration

	// MatchTimeout bounds an entity match operation (default: 100ms).
	MatchTimeout time.Duration

	// BuildTimeout is the deterministic upper bound for a whole build
	// (default: 300ms). Sub-step timeouts must sum to at most this.
	BuildTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:     10000,
		SimilarLimit:      20,
		SimilarityTimeout: 150 * time.Millisecond,
		TimingTimeout:     50 * time.Millisecond,
		MatchTimeout:      100 * time.Millisecond,
		BuildTimeout:      300 * time.Millisecond,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.MaxCandidates < 1 {
		return fmt.Errorf("MaxCandidates must be >= 1, got %d", c.MaxCandidates)
	}
	if c.SimilarLimit < 1 {
		return fmt.Errorf("SimilarLimit must be >= 1, got %d", c.SimilarLimit)
	}
	if c.SimilarityTimeout <= 0 {
		return fmt.Errorf("SimilarityTimeout must be > 0, got %v", c.SimilarityTimeout)
	}
	if c.TimingTimeout <= 0 {
		return fmt.Errorf("TimingTimeout must be > 0, got %v", c.TimingTimeout)
	}
	if c.MatchTimeout <= 0 {
		return fmt.Errorf("MatchTimeout must be > 0, got %v", c.MatchTimeout)
	}
	if c.BuildTimeout <= 0 {
		return fmt.Errorf("BuildTimeout must be > 0, got %v", c.BuildTimeout)
	}
	if c.SimilarityTimeout+c.TimingTimeout > c.BuildTimeout {
		return fmt.Errorf("sub-step timeouts (%v) exceed BuildTimeout (%v)",
			c.SimilarityTimeout+c.TimingTimeout, c.BuildTimeout)
	}
	return nil
}
