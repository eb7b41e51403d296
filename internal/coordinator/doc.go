// Package coordinator drives the polling lifecycle of one SOMweb device.
//
// A Coordinator owns a single device session and is the only component
// that talks to it on a schedule. It maintains a published snapshot of
// device state that downstream consumers (entity projections, the API,
// history recording) read without ever touching the device themselves.
//
// # Poll cycle
//
// Run executes cycles strictly sequentially on one goroutine: a ticker
// at the scan interval plus a buffered forced-refresh channel. Each
// cycle checks liveness first and attempts one reconnect when the
// device is dead; a cycle that cannot restore the session fails with
// ErrUpdateFailed and leaves the previous snapshot untouched. Door
// status queries are isolated per door: one door failing to answer
// marks that door unknown without failing the cycle.
//
// # Firmware throttle
//
// Device info and firmware availability are expensive queries served
// only to administrator sessions. They run at most once per configured
// interval, measured with monotonic time; a check that has never
// succeeded is always due. Firmware refresh failures never fail a poll
// cycle.
//
// # Door actions
//
// ExecuteDoorAction maps the target state to a command, sends it, and
// on rejection reconnects once and retries exactly once. After the
// device accepts, it waits for the door to settle and forces one
// out-of-band refresh. The result is a plain bool: callers act on the
// refreshed snapshot, not on error details.
package coordinator
