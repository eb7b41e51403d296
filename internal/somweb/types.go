package somweb

// DoorStatus is the observed (or requested target) state of a door.
//
// Unknown covers transitional states, failed status queries, and
// unreachable devices. It is deliberately part of the enum rather than an
// error: a door with an unknown status is still a door worth publishing.
type DoorStatus string

// DoorStatus values.
const (
	DoorOpen    DoorStatus = "open"
	DoorClosed  DoorStatus = "closed"
	DoorUnknown DoorStatus = "unknown"
)

// DoorAction is a command sent to a door.
type DoorAction string

// DoorAction values.
const (
	ActionOpen  DoorAction = "open"
	ActionClose DoorAction = "close"
)

// Action maps a target status to the action that reaches it.
//
// The mapping is total: open targets open, everything else closes. A
// caller requesting DoorUnknown as a target gets a close action, which
// matches the device's behaviour of treating any non-open request as a
// close request.
func (s DoorStatus) Action() DoorAction {
	if s == DoorOpen {
		return ActionOpen
	}
	return ActionClose
}

// Door is the static descriptor of a single door on a SOMweb device.
// The ID is assigned by the device and is stable across sessions.
// The door list is fetched once at coordinator setup and never re-fetched.
type Door struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DeviceInfo is a snapshot of device-level information. It is wholly
// replaced on each successful firmware/device-info refresh and is only
// available to administrator sessions.
type DeviceInfo struct {
	FirmwareVersion     string `json:"firmware_version"`
	Identifier          string `json:"identifier"`
	WifiSignalQuality   int    `json:"wifi_signal_quality"` // 0-5 grade
	WifiSignalLevel     int    `json:"wifi_signal_level"`   // dBm, negative
	IPAddress           string `json:"ip_address"`
	TimeZone            string `json:"timezone"`
	RemoteAccessEnabled bool   `json:"remote_access_enabled"`
}

// AuthResult is the outcome of an authentication attempt.
// A false Success with a nil error means the device rejected the
// credentials; transport problems surface as errors instead.
type AuthResult struct {
	Success bool
}
