// Package api serves the bridge's HTTP interface.
//
// # Surface
//
// Under /api/v1: a health probe, JWT login for the bridge admin, CRUD
// for device configuration entries, and per-device door reads and
// actions. Creating or reconfiguring an entry validates the supplied
// settings against the live device first; validation failures map onto
// distinct error codes so clients can point at the offending field.
//
// # State stream
//
// A WebSocket endpoint pushes every coordinator snapshot, tagged with
// the device UDI, to all connected clients. The stream is one-way and
// authenticated by an access token in the query string.
package api
