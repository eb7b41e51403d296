package mqtt

import "fmt"

// Topic scheme for the SOMweb bridge:
//
//	somweb/system/status                     bridge online/offline (retained, LWT)
//	somweb/{udi}/availability                device reachability (retained)
//	somweb/{udi}/door/{id}/state             door state document (retained)
//	somweb/{udi}/door/{id}/set               door command ("open" / "close")
//	somweb/{udi}/firmware/state              firmware/update document (retained, admin only)
//	somweb/{udi}/diagnostics/state           wifi/IP/timezone document (retained, admin only)
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "somweb"

	// TopicPrefixSystem is the base for bridge-level system topics.
	TopicPrefixSystem = "somweb/system"
)

// Topics provides builders for SOMweb bridge MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// SystemStatus returns the bridge-level status topic (used for LWT).
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceAvailability returns the per-device availability topic.
//
// Example: somweb/4A3BC9/availability
func (Topics) DeviceAvailability(udi string) string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefix, udi)
}

// DoorState returns the state topic for a door.
//
// Example: somweb/4A3BC9/door/1/state
func (Topics) DoorState(udi string, doorID int) string {
	return fmt.Sprintf("%s/%s/door/%d/state", TopicPrefix, udi, doorID)
}

// DoorCommand returns the command topic for a door.
//
// Example: somweb/4A3BC9/door/1/set
func (Topics) DoorCommand(udi string, doorID int) string {
	return fmt.Sprintf("%s/%s/door/%d/set", TopicPrefix, udi, doorID)
}

// DoorCommandWildcard returns a subscription pattern matching all door
// commands for a device.
func (Topics) DoorCommandWildcard(udi string) string {
	return fmt.Sprintf("%s/%s/door/+/set", TopicPrefix, udi)
}

// FirmwareState returns the firmware/update state topic for a device.
func (Topics) FirmwareState(udi string) string {
	return fmt.Sprintf("%s/%s/firmware/state", TopicPrefix, udi)
}

// DiagnosticsState returns the diagnostics state topic for a device.
func (Topics) DiagnosticsState(udi string) string {
	return fmt.Sprintf("%s/%s/diagnostics/state", TopicPrefix, udi)
}
