// Package influxdb provides time-series storage for door state history.
//
// Door status transitions and wifi telemetry are written to InfluxDB v2
// as non-blocking batched points. The package is optional: when disabled
// in configuration, Connect returns ErrDisabled and callers run without
// history.
package influxdb
