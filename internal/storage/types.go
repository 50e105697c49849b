package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	// Callers on the request path treat this as an empty result, not a failure.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates a transient storage failure. The composer
	// logs and skips the affected context piece; the read API maps it to
	// 503. There is no in-request retry.
	ErrUnavailable = errors.New("storage unavailable")
)

// EntityMatchUpdate carries the per-match mutation applied to an entity.
// The occurrence counter is incremented atomically inside the store so
// concurrent matches against the same entity never lose counts; the
// representative vector is last-write-wins.
type EntityMatchUpdate struct {
	// RepresentativeVector replaces the entity's current vector.
	RepresentativeVector []float32

	// LastSeenAt is the timestamp of the matching event.
	LastSeenAt time.Time
}
