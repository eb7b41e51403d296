// Package history records door state transitions and device telemetry
// to InfluxDB. It is a pure consumer of coordinator snapshots and is
// simply not wired when InfluxDB is disabled.
package history
