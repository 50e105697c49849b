package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// SettingsProvider yields the current settings snapshot. Snapshots are
// immutable; one build of context uses one snapshot throughout.
type SettingsProvider interface {
	Snapshot() types.Settings
}

// Engine wires the similarity engine, entity matcher, pattern analyzer and
// context composer behind a single ingestion entry point.
type Engine struct {
	store      storage.Store
	similarity *SimilarityEngine
	matcher    *EntityMatcher
	patterns   *PatternAnalyzer
	composer   *ContextComposer
	worker     *PatternWorker
	settings   SettingsProvider
	config     Config

	mu      sync.RWMutex
	started bool
}

// NewEngine constructs the full engine over the given store. The settings
// provider supplies runtime-tunable knobs; everything else comes from config.
func NewEngine(store storage.Store, settings SettingsProvider, config Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings provider is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	similarity, err := NewSimilarityEngine(store, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create similarity engine: %w", err)
	}
	matcher, err := NewEntityMatcher(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity matcher: %w", err)
	}
	patterns, err := NewPatternAnalyzer(store, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern analyzer: %w", err)
	}
	composer, err := NewContextComposer(similarity, patterns, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create context composer: %w", err)
	}

	snap := settings.Snapshot()
	worker, err := NewPatternWorker(store, patterns, snap.PatternRecalcInterval, snap.TimeWindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern worker: %w", err)
	}

	return &Engine{
		store:      store,
		similarity: similarity,
		matcher:    matcher,
		patterns:   patterns,
		composer:   composer,
		worker:     worker,
		settings:   settings,
		config:     config,
	}, nil
}

// Composer exposes the context composer, mainly for telemetry wiring.
func (e *Engine) Composer() *ContextComposer { return e.composer }

// Patterns exposes the pattern analyzer for read paths (API handlers).
func (e *Engine) Patterns() *PatternAnalyzer { return e.patterns }

// Start launches the background pattern worker. Must be called before
// EnrichDescription.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	log.Println("Starting context engine...")
	if err := e.worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pattern worker: %w", err)
	}
	e.started = true
	log.Println("Context engine started successfully")
	return nil
}

// Shutdown stops the background worker and waits for in-flight sweeps.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return fmt.Errorf("engine not started")
	}

	log.Println("Shutting down context engine...")
	e.worker.Stop()
	e.started = false
	log.Println("Context engine shut down successfully")
	return nil
}

// EnrichResult is the outcome of ingesting one event.
type EnrichResult struct {
	Build BuildResult
	Match *MatchResult
}

// EnrichDescription is the ingestion entry point: it records the event and
// its embedding, matches the detection against known entities, and builds
// the enriched prompt. Storage of the event and embedding is mandatory;
// entity matching and context building degrade gracefully, so the returned
// prompt is always usable.
func (e *Engine) EnrichDescription(ctx context.Context, event *types.Event, embedding []float32, entityType types.EntityType, basePrompt string) (*EnrichResult, error) {
	e.mu.RLock()
	if !e.started {
		e.mu.RUnlock()
		return nil, fmt.Errorf("engine not started")
	}
	e.mu.RUnlock()

	if event == nil || event.ID == "" {
		return nil, fmt.Errorf("%w: event with id is required", storage.ErrInvalidInput)
	}

	settings := e.settings.Snapshot()

	if err := e.store.RecordEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	emb := &types.EventEmbedding{
		EventID:   event.ID,
		Vector:    embedding,
		CreatedAt: time.Now(),
	}
	if err := e.store.StoreEmbedding(ctx, emb); err != nil {
		return nil, fmt.Errorf("failed to store embedding: %w", err)
	}

	// Entity matching runs under its own timeout; a failure here loses the
	// entity context line but never the description.
	var match *MatchResult
	if entityType.IsValid() {
		matchCtx, cancel := context.WithTimeout(ctx, e.config.MatchTimeout)
		m, err := e.matcher.Match(matchCtx, event, embedding, entityType, settings.SimilarityThreshold)
		cancel()
		if err != nil {
			log.Printf("engine: WARNING entity match failed for event %s camera %s: %v",
				event.ID, event.CameraID, err)
		} else {
			match = m
		}
	}

	build := e.composer.Build(ctx, event, basePrompt, match, settings)
	return &EnrichResult{Build: build, Match: match}, nil
}
