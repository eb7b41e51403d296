package history

import (
	"strconv"
	"sync"

	"github.com/taarskog/somweb-bridge/internal/coordinator"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// Sink receives history points. The influxdb client satisfies this;
// writes are expected to be non-blocking.
type Sink interface {
	WriteDoorState(udi string, doorID string, status string, value int)
	WriteWifiSignal(udi string, levelDBm int, quality int)
}

// Status values written alongside the string form, for graphing.
const (
	valueClosed  = 0
	valueOpen    = 1
	valueUnknown = -1
)

// Recorder turns coordinator snapshots into time-series points.
//
// Only changes are written: a door point when its status differs from
// the last recorded one (including the first observation), and a wifi
// point when the signal readings move. Register Record as a coordinator
// listener.
type Recorder struct {
	sink Sink
	udi  string
	log  *logging.Logger

	mu         sync.Mutex
	lastStatus map[int]somweb.DoorStatus
	lastLevel  int
	lastQual   int
	hasWifi    bool
}

// NewRecorder creates a recorder for one device.
func NewRecorder(sink Sink, udi string, log *logging.Logger) *Recorder {
	return &Recorder{
		sink:       sink,
		udi:        udi,
		log:        log.With("component", "history", "udi", udi),
		lastStatus: make(map[int]somweb.DoorStatus),
	}
}

// Record writes the snapshot's changes to the sink.
func (r *Recorder) Record(data coordinator.Data) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for doorID, status := range data.Doors {
		last, seen := r.lastStatus[doorID]
		if seen && last == status {
			continue
		}
		r.lastStatus[doorID] = status
		r.sink.WriteDoorState(r.udi, strconv.Itoa(doorID), string(status), statusValue(status))
	}

	if info := data.DeviceInfo; info != nil {
		if !r.hasWifi || info.WifiSignalLevel != r.lastLevel || info.WifiSignalQuality != r.lastQual {
			r.lastLevel = info.WifiSignalLevel
			r.lastQual = info.WifiSignalQuality
			r.hasWifi = true
			r.sink.WriteWifiSignal(r.udi, info.WifiSignalLevel, info.WifiSignalQuality)
		}
	}
}

func statusValue(status somweb.DoorStatus) int {
	switch status {
	case somweb.DoorOpen:
		return valueOpen
	case somweb.DoorClosed:
		return valueClosed
	default:
		return valueUnknown
	}
}
