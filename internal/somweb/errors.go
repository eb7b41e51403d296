package somweb

import "errors"

// Domain errors for the somweb package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, somweb.ErrNotAuthenticated) {
//	    // re-authenticate and retry
//	}
var (
	// ErrCommunication is returned when a device request fails at the
	// transport level or returns an unparseable response.
	ErrCommunication = errors.New("somweb: communication error")

	// ErrNotAuthenticated is returned when an operation requires a
	// session token and none is held.
	ErrNotAuthenticated = errors.New("somweb: not authenticated")

	// ErrWaitTimeout is returned when a door does not reach the target
	// state within the wait window.
	ErrWaitTimeout = errors.New("somweb: timed out waiting for door state")
)
