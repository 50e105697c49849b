package types

import "time"

// EntityType classifies the subject a recurring entity represents.
type EntityType string

const (
	EntityTypePerson  EntityType = "person"
	EntityTypeVehicle EntityType = "vehicle"
	EntityTypeAnimal  EntityType = "animal"
)

// ValidEntityTypes lists every entity type the matcher accepts.
var ValidEntityTypes = []EntityType{
	EntityTypePerson,
	EntityTypeVehicle,
	EntityTypeAnimal,
}

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	for _, known := range ValidEntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Entity represents a recurring recognized subject (person, vehicle or
// animal) tracked across events. Entities are mutated on every match
// (occurrence counter, representative vector, last seen) and are never
// deleted by this subsystem; merging is an explicit operator action
// performed elsewhere.
type Entity struct {
	// ID is the unique identifier (UUID).
	ID string `json:"id"`

	// Type is the entity classification (person, vehicle, animal).
	Type EntityType `json:"type"`

	// DisplayName is an optional operator-assigned name. Empty for
	// entities that have not been named yet ("unnamed visitor").
	DisplayName string `json:"display_name,omitempty"`

	// RepresentativeVector is the vector new events are compared against.
	// Maintained as a normalized running mean of all matched embeddings.
	RepresentativeVector []float32 `json:"representative_vector,omitempty"`

	// OccurrenceCount is the number of events linked to this entity.
	// Invariant: equals the number of EntityEventLink rows for the entity.
	OccurrenceCount int `json:"occurrence_count"`

	// FirstSeenAt is the timestamp of the event that created the entity.
	FirstSeenAt time.Time `json:"first_seen_at"`

	// LastSeenAt is the timestamp of the most recent matched event.
	LastSeenAt time.Time `json:"last_seen_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityEventLink records that an event was attributed to an entity,
// together with the similarity score at match time. Created exactly once
// per matched or created event.
type EntityEventLink struct {
	EventID         string    `json:"event_id"`
	EntityID        string    `json:"entity_id"`
	SimilarityScore float64   `json:"similarity_score"`
	CreatedAt       time.Time `json:"created_at"`
}
