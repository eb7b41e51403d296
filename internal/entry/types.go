package entry

import "time"

// Mode selects how the bridge reaches a device.
type Mode string

// Connection modes.
const (
	// ModeLocal connects directly to the device's LAN address.
	ModeLocal Mode = "local"
	// ModeCloud connects through the vendor relay, addressed by UDI.
	ModeCloud Mode = "cloud"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	return m == ModeLocal || m == ModeCloud
}

// Entry is one stored device configuration. The UDI is unique across
// entries and always comes from the device itself, never from user
// input.
type Entry struct {
	ID        string    `json:"id"`
	UDI       string    `json:"udi"`
	Title     string    `json:"title"`
	Mode      Mode      `json:"mode"`
	URL       string    `json:"url,omitempty"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input is the user-supplied configuration to validate. URL is required
// in local mode, UDI in cloud mode; the validated UDI from the device
// overrides whatever was entered.
type Input struct {
	Mode     Mode   `json:"mode"`
	URL      string `json:"url,omitempty"`
	UDI      string `json:"udi,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Result is the device-confirmed outcome of a successful validation.
type Result struct {
	UDI   string
	Title string
}
