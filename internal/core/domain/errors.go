package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidFilter indicates a malformed metadata filter.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidHeader indicates a header name or value that fails HTTP
	// syntax rules. The HTTP layer maps this to a 400 response.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrQueueStopped indicates an enqueue after the queue shut down.
	ErrQueueStopped = errors.New("queue stopped")

	// ErrMissingSource indicates a patch arriving over the JS bridge
	// without a source plugin attribution.
	ErrMissingSource = errors.New("patch missing source plugin")

	// ErrResolverUnset indicates a stream handle was materialised before
	// the process-wide resolver was injected.
	ErrResolverUnset = errors.New("stream resolver not injected")
)
