package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDoorState records a door status observation.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Status is encoded as a numeric value for graphing: 1 open, 0 closed,
// -1 unknown. The string form is kept as a field for readability.
func (c *Client) WriteDoorState(udi string, doorID string, status string, value int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"door_state",
		map[string]string{
			"udi":  udi,
			"door": doorID,
		},
		map[string]interface{}{
			"value":  value,
			"status": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteWifiSignal records the device's wifi signal readings.
//
// Level is in dBm (negative), quality is the device's 0-5 grade.
func (c *Client) WriteWifiSignal(udi string, levelDBm int, quality int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"wifi_signal",
		map[string]string{
			"udi": udi,
		},
		map[string]interface{}{
			"level_dbm": levelDBm,
			"quality":   quality,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
