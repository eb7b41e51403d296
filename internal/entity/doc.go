// Package entity projects device state onto MQTT.
//
// Each device gets a set of retained state documents: one per door,
// plus firmware and diagnostics documents for administrator sessions,
// plus an availability topic that tracks poll cycle health. Door
// commands arrive on per-door set topics and are executed through the
// coordinator, with a transitional opening/closing flag published while
// the action is in flight.
//
// The admin-only documents are added or cleared at runtime when a
// reconnect reveals a changed admin capability, so the published set
// always matches what the session can actually see.
package entity
