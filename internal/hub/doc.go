// Package hub owns the per-device runtimes.
//
// Each stored configuration entry gets a Runtime: a device session, a
// polling coordinator, and the MQTT projections wired to it. The hub
// starts runtimes for all entries at boot, and adds, removes, or
// reloads them as entries change through the API. An unreachable device
// keeps its runtime in a setup-retry loop; rejected credentials stop
// the runtime until the entry is reconfigured.
package hub
