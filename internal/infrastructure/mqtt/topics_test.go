package mqtt

import "testing"

func TestTopics(t *testing.T) {
	var topics Topics

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"system status", topics.SystemStatus(), "somweb/system/status"},
		{"availability", topics.DeviceAvailability("4A3BC9"), "somweb/4A3BC9/availability"},
		{"door state", topics.DoorState("4A3BC9", 1), "somweb/4A3BC9/door/1/state"},
		{"door command", topics.DoorCommand("4A3BC9", 2), "somweb/4A3BC9/door/2/set"},
		{"command wildcard", topics.DoorCommandWildcard("4A3BC9"), "somweb/4A3BC9/door/+/set"},
		{"firmware state", topics.FirmwareState("4A3BC9"), "somweb/4A3BC9/firmware/state"},
		{"diagnostics state", topics.DiagnosticsState("4A3BC9"), "somweb/4A3BC9/diagnostics/state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
