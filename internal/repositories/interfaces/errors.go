package interfaces

import "errors"

// Store-level sentinel errors. Repositories translate driver failures into
// these so the services can map them onto caller-visible outcomes without
// knowing which backend is underneath.
var (
	// ErrNotFound means the entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict means a conditional write found the entity in a different
	// state than the caller observed. The caller must re-read before deciding
	// anything; the entity is no longer what it expected.
	ErrConflict = errors.New("entity state conflict")

	// ErrUnavailable means the store itself could not be reached. Transient;
	// callers may retry.
	ErrUnavailable = errors.New("store unavailable")
)
