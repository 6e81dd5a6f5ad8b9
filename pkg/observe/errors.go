package observe

import "errors"

// Errors returned by the observe package.
var (
	// ErrNotObservable is returned when a client attempts to observe a
	// resource that does not support observation.
	ErrNotObservable = errors.New("observe: resource is not observable")

	// ErrNoRelation is returned when an operation references a relation
	// that does not exist.
	ErrNoRelation = errors.New("observe: no such relation")

	// ErrCancelled is returned when an operation is attempted on a
	// cancelled relation.
	ErrCancelled = errors.New("observe: relation cancelled")
)
