package somweb

import "context"

// Client is the session contract with one physical SOMweb device.
//
// All blocking calls take a context and return explicit errors; nothing
// here panics across the boundary. The coordinator treats every error as
// a recoverable condition, so implementations should wrap transport
// failures rather than retrying internally (the coordinator owns retry
// policy).
type Client interface {
	// IsAlive reports whether the device answers its liveness endpoint.
	// Transport failures count as not alive.
	IsAlive(ctx context.Context) bool

	// Authenticate establishes (or re-establishes) a session.
	Authenticate(ctx context.Context) (AuthResult, error)

	// Doors returns the device's door list in device order.
	// Requires an authenticated session.
	Doors(ctx context.Context) ([]Door, error)

	// DoorStatus queries the current status of a single door.
	DoorStatus(ctx context.Context, doorID int) (DoorStatus, error)

	// DoorAction sends an open/close command. A false result with nil
	// error means the device rejected the command.
	DoorAction(ctx context.Context, doorID int, action DoorAction) (bool, error)

	// WaitForDoorState blocks until the door reaches the target status.
	// The implementation owns the timeout; callers add none.
	WaitForDoorState(ctx context.Context, doorID int, target DoorStatus) error

	// DeviceInfo returns device-level information. Administrator only.
	DeviceInfo(ctx context.Context) (DeviceInfo, error)

	// UpdateAvailable reports whether a firmware update is available.
	// Administrator only.
	UpdateAvailable(ctx context.Context) (bool, error)

	// UDI is the stable unique device identifier, available after a
	// successful Authenticate.
	UDI() string

	// IsAdmin reports whether the authenticated user has administrator
	// capability on the device.
	IsAdmin() bool

	// Close releases network resources held by the session.
	Close() error
}
