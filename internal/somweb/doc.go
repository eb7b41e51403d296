// Package somweb speaks the HTTP interface of SOMweb garage door
// controllers.
//
// # Sessions
//
// A SOMweb device serves a form-login web UI; the session token, the
// device's unique identifier (UDI) and the admin flag are scraped from
// the post-login page. Tokens expire server-side, so callers should
// re-run Authenticate when door commands start getting rejected.
//
// # Connection modes
//
// Devices are reachable two ways: directly on the LAN (NewLocalClient
// with the device's URL) or through the vendor's cloud relay
// (NewCloudClient, which derives the address from the UDI). Both modes
// speak the identical protocol.
//
// # Door semantics
//
// Door IDs and names are device-assigned and stable. A door reports
// open, closed, or neither while it is moving; the neither case maps to
// DoorUnknown without an error. Commands are fire-and-forget at the
// device level; WaitForDoorState polls until the door settles.
package somweb
