package discovery

import "errors"

// Errors returned by the discovery package.
var (
	// ErrClosed is returned when an operation is attempted on a closed
	// advertiser.
	ErrClosed = errors.New("discovery: advertiser closed")

	// ErrAlreadyStarted is returned when Start is called on an advertiser
	// that is already advertising.
	ErrAlreadyStarted = errors.New("discovery: already advertising")

	// ErrNotStarted is returned when Stop is called on an advertiser that
	// is not advertising.
	ErrNotStarted = errors.New("discovery: not advertising")

	// ErrServiceNotFound is returned when a lookup produces no match
	// before its timeout.
	ErrServiceNotFound = errors.New("discovery: service not found")
)
