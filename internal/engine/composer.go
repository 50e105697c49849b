package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/scrypster/hindsight/pkg/types"
)

// contextHeader delimits the appended historical context section.
const contextHeader = "--- Historical context ---"

// ContextComposer assembles the context bundle for one event and renders the
// enriched prompt. Every sub-step enforces its own timeout and swallows
// failures: a context failure must never block description generation.
type ContextComposer struct {
	similarity *SimilarityEngine
	patterns   *PatternAnalyzer
	config     Config

	similarityBreaker *ComponentBreaker
	timingBreaker     *ComponentBreaker

	// randInt draws a uniform integer in [0, n). Swappable in tests.
	randInt func(n int) int

	onTelemetry func(types.TelemetryRecord)
}

// NewContextComposer creates a composer over the similarity engine and
// pattern analyzer.
func NewContextComposer(similarity *SimilarityEngine, patterns *PatternAnalyzer, config Config) (*ContextComposer, error) {
	if similarity == nil {
		return nil, fmt.Errorf("similarity engine is required")
	}
	if patterns == nil {
		return nil, fmt.Errorf("pattern analyzer is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	breakerCfg := DefaultBreakerConfig()
	return &ContextComposer{
		similarity:        similarity,
		patterns:          patterns,
		config:            config,
		similarityBreaker: NewComponentBreaker("similarity", breakerCfg),
		timingBreaker:     NewComponentBreaker("timing", breakerCfg),
		randInt:           rand.Intn,
	}, nil
}

// SetOnTelemetry sets a callback fired with the telemetry record of every
// build. Used to stream records to connected analytics clients.
func (c *ContextComposer) SetOnTelemetry(callback func(types.TelemetryRecord)) {
	c.onTelemetry = callback
}

// BuildResult is the outcome of one prompt build.
type BuildResult struct {
	// Prompt is the enriched prompt, or the base prompt unchanged when no
	// context was included.
	Prompt string

	// Included reports whether any context was appended.
	Included bool

	// ABSkipped reports whether the A/B draw omitted context injection.
	ABSkipped bool

	// Bundle holds the assembled context pieces.
	Bundle types.ContextBundle

	// Telemetry is the structured record for logging and analytics.
	Telemetry types.TelemetryRecord
}

// Build assembles historical context for the event and appends it to the
// base prompt. Steps short-circuit independently: disabled flag and the A/B
// draw return the prompt unchanged; each context piece is attempted under
// its own timeout and skipped on failure. Build never returns an error.
func (c *ContextComposer) Build(ctx context.Context, event *types.Event, basePrompt string, match *MatchResult, settings types.Settings) (result BuildResult) {
	started := time.Now()
	result = BuildResult{
		Prompt: basePrompt,
		Telemetry: types.TelemetryRecord{
			EventID:   event.ID,
			CameraID:  event.CameraID,
			Timestamp: event.Timestamp,
		},
	}
	defer func() {
		result.Telemetry.Elapsed = time.Since(started)
		if c.onTelemetry != nil {
			c.onTelemetry(result.Telemetry)
		}
	}()

	if !settings.EnableContext {
		return result
	}

	// A/B sampling: uniform draw in [1,100]. Skipped events still produce
	// telemetry so both arms of the experiment are observable.
	if settings.ABTestSkipPercent > 0 && c.randInt(100)+1 <= settings.ABTestSkipPercent {
		result.ABSkipped = true
		result.Bundle.ABSkipped = true
		result.Telemetry.ABSkipped = true
		log.Printf("composer: context skipped by A/B draw for event %s camera %s", event.ID, event.CameraID)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.BuildTimeout)
	defer cancel()

	var lines []string

	if line := c.entityLine(event, match, settings, &result); line != "" {
		lines = append(lines, line)
	}
	if line := c.similarityLine(ctx, event, settings, &result); line != "" {
		lines = append(lines, line)
	}
	if line := c.timingLine(ctx, event, &result); line != "" {
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return result
	}

	result.Prompt = basePrompt + "\n\n" + contextHeader + "\n" + strings.Join(lines, "\n")
	result.Included = true
	result.Bundle.Included = true
	result.Telemetry.Included = true
	return result
}

// entityLine renders the recognized-visitor context from a match performed
// upstream. Only established matches at or above the threshold contribute.
func (c *ContextComposer) entityLine(event *types.Event, match *MatchResult, settings types.Settings, result *BuildResult) string {
	if match == nil || match.Entity == nil {
		return ""
	}
	if match.IsNew {
		// New entities carry no history worth injecting, but the match
		// outcome is still recorded for analytics.
		result.Telemetry.EntityID = match.Entity.ID
		result.Telemetry.EntityIsNew = true
		return ""
	}
	if match.Score < settings.SimilarityThreshold {
		return ""
	}

	entity := match.Entity
	result.Bundle.EntityContext = &types.EntityContext{
		EntityID:    entity.ID,
		Type:        entity.Type,
		DisplayName: entity.DisplayName,
		IsNew:       false,
		MatchScore:  match.Score,
		SeenCount:   entity.OccurrenceCount,
		FirstSeenAt: entity.FirstSeenAt,
		LastSeenAt:  entity.LastSeenAt,
	}
	result.Telemetry.EntityID = entity.ID
	result.Telemetry.MatchScore = match.Score

	now := time.Now()
	subject := fmt.Sprintf("Unnamed recurring %s", subjectNoun(entity.Type))
	if entity.DisplayName != "" {
		subject = fmt.Sprintf("Known %s %q", subjectNoun(entity.Type), entity.DisplayName)
	}
	return fmt.Sprintf("%s, seen %d times, first seen %s, last seen %s.",
		subject, entity.OccurrenceCount,
		relativeTime(entity.FirstSeenAt, now), relativeTime(entity.LastSeenAt, now))
}

// similarityLine renders the similar-events context under its own timeout.
func (c *ContextComposer) similarityLine(ctx context.Context, event *types.Event, settings types.Settings, result *BuildResult) string {
	opCtx, cancel := context.WithTimeout(ctx, c.config.SimilarityTimeout)
	defer cancel()

	var matches []Match
	err := c.similarityBreaker.Execute(opCtx, func() error {
		var opErr error
		matches, opErr = c.similarity.FindSimilar(opCtx, SimilarOptions{
			EventID:       event.ID,
			CameraID:      event.CameraID,
			WindowDays:    settings.TimeWindowDays,
			MinSimilarity: settings.SimilarityThreshold,
		})
		return opErr
	})
	if err != nil {
		c.recordFailure(result, "similarity", event, err)
		return ""
	}
	if len(matches) == 0 {
		return ""
	}

	best := matches[0]
	mostRecent := matches[0]
	for _, m := range matches[1:] {
		if m.OccurredAt.After(mostRecent.OccurredAt) {
			mostRecent = m
		}
	}

	result.Bundle.SimilarityContext = &types.SimilarityContext{
		Count:        len(matches),
		WindowDays:   settings.TimeWindowDays,
		BestScore:    best.Score,
		MostRecentAt: mostRecent.OccurredAt,
		MostRecentID: mostRecent.EventID,
	}
	result.Telemetry.SimilarCount = len(matches)
	result.Telemetry.BestSimilarScore = best.Score

	plural := "occurrences"
	if len(matches) == 1 {
		plural = "occurrence"
	}
	return fmt.Sprintf("%d similar %s in the last %d days, most recent %s, best match %.0f%%.",
		len(matches), plural, settings.TimeWindowDays,
		relativeTime(mostRecent.OccurredAt, time.Now()), best.Score*100)
}

// timingLine renders the timing-typicality context under its own timeout.
func (c *ContextComposer) timingLine(ctx context.Context, event *types.Event, result *BuildResult) string {
	opCtx, cancel := context.WithTimeout(ctx, c.config.TimingTimeout)
	defer cancel()

	var timing *types.TimingVerdict
	err := c.timingBreaker.Execute(opCtx, func() error {
		var opErr error
		timing, opErr = c.patterns.IsTypicalTiming(opCtx, event.CameraID, event.Timestamp)
		return opErr
	})
	if err != nil {
		c.recordFailure(result, "timing", event, err)
		return ""
	}
	if timing == nil || timing.IsTypical == nil {
		return ""
	}

	result.Bundle.TimingContext = timing
	result.Telemetry.TimingTypical = timing.IsTypical

	switch timing.Reason {
	case ReasonQuietHour:
		return "This camera is normally quiet at this hour."
	case ReasonPeakHour:
		return "This is a typical activity time for this camera."
	case ReasonAtypicalDay:
		return "Activity is less typical on this day of the week."
	default:
		return "This falls within a normal activity period for this camera."
	}
}

// recordFailure logs a skipped sub-step and records it in telemetry.
// Timeouts, breaker rejections and transient storage failures all land
// here; none of them abort the build.
func (c *ContextComposer) recordFailure(result *BuildResult, component string, event *types.Event, err error) {
	result.Telemetry.Failures = append(result.Telemetry.Failures, component)
	log.Printf("composer: %s context skipped for event %s camera %s: %v",
		component, event.ID, event.CameraID, err)
}

// subjectNoun maps an entity type to the noun used in rendered context.
func subjectNoun(t types.EntityType) string {
	switch t {
	case types.EntityTypeVehicle:
		return "vehicle"
	case types.EntityTypeAnimal:
		return "animal"
	default:
		return "visitor"
	}
}

// relativeTime renders a coarse human-readable distance between t and now.
func relativeTime(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return pluralize(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return pluralize(int(d.Hours()), "hour")
	case d < 14*24*time.Hour:
		return pluralize(int(d.Hours()/24), "day")
	case d < 60*24*time.Hour:
		return pluralize(int(d.Hours()/(24*7)), "week")
	default:
		return pluralize(int(d.Hours()/(24*30)), "month")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
