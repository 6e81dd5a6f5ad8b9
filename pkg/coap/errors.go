package coap

import "errors"

// Errors returned by the coap package.
var (
	// ErrClosed is returned when an operation is attempted on a closed
	// endpoint.
	ErrClosed = errors.New("coap: endpoint closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("coap: endpoint already started")

	// ErrResourceExists is returned when adding a resource at a path that
	// is already registered.
	ErrResourceExists = errors.New("coap: resource already exists")

	// ErrInvalidPath is returned for an empty resource path.
	ErrInvalidPath = errors.New("coap: invalid resource path")
)
