package engine

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"

	"github.com/scrypster/hindsight/internal/storage"
	"github.com/scrypster/hindsight/pkg/types"
)

// EntityMatcher decides whether an event's subject matches a previously seen
// entity or represents a new one, and maintains entity occurrence statistics.
// Entity merging is an explicit operator action and never happens here.
type EntityMatcher struct {
	entities storage.EntityStore
}

// NewEntityMatcher creates an entity matcher over the given entity store.
func NewEntityMatcher(entities storage.EntityStore) (*EntityMatcher, error) {
	if entities == nil {
		return nil, fmt.Errorf("entity store is required")
	}
	return &EntityMatcher{entities: entities}, nil
}

// MatchResult is the outcome of matching one event against known entities.
type MatchResult struct {
	// Entity is the matched or newly created entity, with post-match
	// occurrence statistics.
	Entity *types.Entity

	// Score is the cosine similarity against the entity's representative
	// vector at match time. 1.0 for newly created entities.
	Score float64

	// IsNew reports whether the event created a new entity.
	IsNew bool
}

// Match compares the event embedding against the representative vectors of
// all entities of the same type. The best score at or above threshold wins,
// with exact ties resolved to the entity with the greater occurrence count
// (prefer the established identity). Below threshold, a new entity is
// created. The first event of a type always creates.
func (m *EntityMatcher) Match(ctx context.Context, event *types.Event, embedding []float32, entityType types.EntityType, threshold float64) (*MatchResult, error) {
	if event == nil || event.ID == "" {
		return nil, fmt.Errorf("%w: event is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: embedding is required", storage.ErrInvalidInput)
	}
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", storage.ErrInvalidInput, entityType)
	}

	entities, err := m.entities.ListEntitiesByType(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("matcher: failed to list entities: %w", err)
	}

	var best *types.Entity
	bestScore := math.Inf(-1)
	if len(entities) > 0 {
		vectors := make([][]float32, len(entities))
		for i := range entities {
			vectors[i] = entities[i].RepresentativeVector
		}
		scores := BatchCosineSimilarity(embedding, vectors)
		for i, score := range scores {
			switch {
			case score > bestScore:
				best = entities[i]
				bestScore = score
			case score == bestScore && best != nil && entities[i].OccurrenceCount > best.OccurrenceCount:
				best = entities[i]
			}
		}
	}

	if best != nil && bestScore >= threshold {
		return m.applyMatch(ctx, event, embedding, best, bestScore)
	}
	return m.createEntity(ctx, event, embedding, entityType)
}

// applyMatch attributes the event to an existing entity: insert the event
// link, and only when that created a row, refresh the representative vector
// and bump the occurrence counter. The counter moves together with link
// rows, so replaying an already-attributed event leaves the stats alone.
func (m *EntityMatcher) applyMatch(ctx context.Context, event *types.Event, embedding []float32, entity *types.Entity, score float64) (*MatchResult, error) {
	link := &types.EntityEventLink{
		EventID:         event.ID,
		EntityID:        entity.ID,
		SimilarityScore: score,
	}
	created, err := m.entities.LinkEntityEvent(ctx, link)
	if err != nil {
		// Without a link row the counter must not move; serve the match
		// from the entity's current stats.
		log.Printf("matcher: WARNING - failed to link event %s to entity %s: %v", event.ID, entity.ID, err)
		matched := *entity
		return &MatchResult{Entity: &matched, Score: score, IsNew: false}, nil
	}
	if !created {
		// Replayed event; it was already attributed and counted.
		matched := *entity
		return &MatchResult{Entity: &matched, Score: score, IsNew: false}, nil
	}

	newCount := entity.OccurrenceCount + 1
	rep := updateRepresentative(entity.RepresentativeVector, embedding, newCount)

	update := storage.EntityMatchUpdate{
		RepresentativeVector: rep,
		LastSeenAt:           event.Timestamp,
	}
	if err := m.entities.ApplyMatch(ctx, entity.ID, update); err != nil {
		return nil, fmt.Errorf("matcher: failed to update entity %s: %w", entity.ID, err)
	}

	matched := *entity
	matched.RepresentativeVector = rep
	matched.OccurrenceCount = newCount
	matched.LastSeenAt = event.Timestamp

	return &MatchResult{Entity: &matched, Score: score, IsNew: false}, nil
}

// createEntity registers a new entity seeded with the event embedding.
func (m *EntityMatcher) createEntity(ctx context.Context, event *types.Event, embedding []float32, entityType types.EntityType) (*MatchResult, error) {
	entity := &types.Entity{
		ID:                   uuid.New().String(),
		Type:                 entityType,
		RepresentativeVector: normalize(embedding),
		OccurrenceCount:      1,
		FirstSeenAt:          event.Timestamp,
		LastSeenAt:           event.Timestamp,
	}
	if err := m.entities.CreateEntity(ctx, entity); err != nil {
		return nil, fmt.Errorf("matcher: failed to create entity: %w", err)
	}

	link := &types.EntityEventLink{
		EventID:         event.ID,
		EntityID:        entity.ID,
		SimilarityScore: 1.0,
	}
	if _, err := m.entities.LinkEntityEvent(ctx, link); err != nil {
		log.Printf("matcher: WARNING - failed to link event %s to entity %s: %v", event.ID, entity.ID, err)
	}

	return &MatchResult{Entity: entity, Score: 1.0, IsNew: true}, nil
}

// updateRepresentative folds a newly matched embedding into the entity's
// representative vector as an incremental running mean over all n matched
// embeddings, then renormalizes to unit length. A running mean tracks the
// entity's typical appearance instead of its most recent one, so a single
// odd capture cannot drag the identity away.
func updateRepresentative(rep, embedding []float32, n int) []float32 {
	if len(rep) != len(embedding) || n < 1 {
		return normalize(embedding)
	}
	updated := make([]float32, len(rep))
	for i := range rep {
		updated[i] = rep[i] + (embedding[i]-rep[i])/float32(n)
	}
	return normalize(updated)
}

// normalize returns a unit-length copy of v. Cosine similarity is
// scale-invariant, so normalizing stored vectors is purely for numeric
// stability of the running mean.
func normalize(v []float32) []float32 {
	var normSq float64
	for _, x := range v {
		normSq += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if normSq == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(normSq)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
