package entry

import "errors"

// Domain errors for the entry package.
//
// The validation errors form a closed taxonomy; callers map them to
// user-facing failures with errors.Is():
//
//	if errors.Is(err, entry.ErrInvalidAuth) {
//	    // wrong device credentials
//	}
var (
	// ErrEntryNotFound is returned when no entry matches the given ID.
	ErrEntryNotFound = errors.New("entry: not found")

	// ErrEntryExists is returned when creating or reconfiguring would
	// leave two entries with the same UDI.
	ErrEntryExists = errors.New("entry: device already configured")

	// ErrInvalidURL is returned when local mode is selected without a
	// usable device URL.
	ErrInvalidURL = errors.New("entry: invalid device url")

	// ErrInvalidUDI is returned when cloud mode is selected without a
	// device identifier.
	ErrInvalidUDI = errors.New("entry: invalid device udi")

	// ErrInvalidAuth is returned for missing or rejected device
	// credentials.
	ErrInvalidAuth = errors.New("entry: invalid credentials")

	// ErrCannotConnect is returned when the device does not answer.
	ErrCannotConnect = errors.New("entry: cannot connect to device")

	// ErrUnknown covers unexpected failures during validation.
	ErrUnknown = errors.New("entry: unknown error")
)
