// Package entry manages stored device configurations.
//
// An entry captures everything needed to reach one SOMweb device:
// connection mode (local URL or cloud-by-UDI), credentials, and the
// device-confirmed UDI. Validate runs the full setup check against a
// live device and returns errors from a closed taxonomy that the API
// maps to distinct responses. Repository persists entries in SQLite
// with UDI uniqueness enforced for both initial setup and
// reconfiguration.
package entry
