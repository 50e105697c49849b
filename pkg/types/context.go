package types

import "time"

// EntityContext is the recognized-visitor piece of a context bundle.
type EntityContext struct {
	EntityID    string     `json:"entity_id"`
	Type        EntityType `json:"type"`
	DisplayName string     `json:"display_name,omitempty"`
	IsNew       bool       `json:"is_new"`
	MatchScore  float64    `json:"match_score"`
	SeenCount   int        `json:"seen_count"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
}

// SimilarityContext is the similar-events piece of a context bundle.
type SimilarityContext struct {
	Count        int       `json:"count"`
	WindowDays   int       `json:"window_days"`
	BestScore    float64   `json:"best_score"`
	MostRecentAt time.Time `json:"most_recent_at"`
	MostRecentID string    `json:"most_recent_id"`
}

// ContextBundle is the ephemeral structure holding the pieces of historical
// context assembled for one event. It is never persisted.
type ContextBundle struct {
	EntityContext     *EntityContext     `json:"entity_context,omitempty"`
	SimilarityContext *SimilarityContext `json:"similarity_context,omitempty"`
	TimingContext     *TimingVerdict     `json:"timing_context,omitempty"`

	// Included reports whether any context was appended to the prompt.
	Included bool `json:"included"`

	// ABSkipped reports whether context injection was omitted by the
	// A/B sampling draw.
	ABSkipped bool `json:"ab_skipped"`
}

// TelemetryRecord is the structured record returned alongside every prompt
// build, for downstream logging and analytics. It captures which context
// pieces were included and why others were not.
type TelemetryRecord struct {
	EventID   string    `json:"event_id"`
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`

	Included  bool `json:"included"`
	ABSkipped bool `json:"ab_skipped"`

	EntityID    string  `json:"entity_id,omitempty"`
	EntityIsNew bool    `json:"entity_is_new,omitempty"`
	MatchScore  float64 `json:"match_score,omitempty"`

	SimilarCount     int     `json:"similar_count"`
	BestSimilarScore float64 `json:"best_similar_score,omitempty"`

	// TimingTypical mirrors TimingVerdict.IsTypical (nil = unknown).
	TimingTypical *bool `json:"timing_typical,omitempty"`

	// Failures lists the names of components whose context piece was
	// skipped due to timeout or storage failure.
	Failures []string `json:"failures,omitempty"`

	// Elapsed is the total wall time spent building the prompt.
	Elapsed time.Duration `json:"elapsed_ns"`
}
