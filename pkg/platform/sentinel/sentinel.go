package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: unique constraint or concurrent modification collision
// - ErrImmutable: row is in a state the storage layer will not mutate
// - ErrStale: a guarded update's expectations (version, author) no longer hold
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrImmutable   = errors.New("immutable")
	ErrStale       = errors.New("stale")
	ErrUnavailable = errors.New("unavailable")
)
