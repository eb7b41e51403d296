package coordinator

import "errors"

// Domain errors for the coordinator package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, coordinator.ErrNotReady) {
//	    // retry setup later
//	}
var (
	// ErrUpdateFailed is returned when a poll cycle fails as a whole
	// (device unreachable and reconnection failed). The previously
	// published snapshot remains valid.
	ErrUpdateFailed = errors.New("coordinator: update failed")

	// ErrNotReady is returned by Setup when the initial data fetch
	// fails. The condition is retryable: the device may simply be
	// offline at startup.
	ErrNotReady = errors.New("coordinator: not ready")
)
