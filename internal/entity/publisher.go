package entity

import (
	"encoding/json"
	"sync"

	"github.com/taarskog/somweb-bridge/internal/coordinator"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/mqtt"
	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// Broker is the slice of the MQTT client the entity layer uses.
type Broker interface {
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Coordinator is the slice of the polling coordinator the entity layer
// consumes.
type Coordinator interface {
	Doors() []somweb.Door
	DoorByID(doorID int) (somweb.Door, bool)
	UDI() string
	IsAdmin() bool
	AddListener(fn coordinator.Listener)
	OnAdminChange(fn func(isAdmin bool))
	OnCycleError(fn func(err error))
}

// Availability payloads.
const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// Cover positions for the door state document.
const (
	positionClosed       = 0
	positionTransitional = 50
	positionOpen         = 100
)

// DoorStateDoc is the retained state document for one door.
//
// Position follows cover conventions: 0 closed, 100 open, 50 while a
// commanded transition is in flight. Both position and is_closed are
// omitted entirely when the door state is unknown.
type DoorStateDoc struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Position  *int   `json:"position,omitempty"`
	IsClosed  *bool  `json:"is_closed,omitempty"`
	IsOpening bool   `json:"is_opening"`
	IsClosing bool   `json:"is_closing"`
}

// FirmwareDoc is the retained firmware state document (admin only).
type FirmwareDoc struct {
	FirmwareVersion string `json:"firmware_version,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
}

// DiagnosticsDoc is the retained diagnostics document (admin only).
type DiagnosticsDoc struct {
	Identifier          string `json:"identifier"`
	WifiSignalQuality   int    `json:"wifi_signal_quality"`
	WifiSignalLevel     int    `json:"wifi_signal_level"`
	IPAddress           string `json:"ip_address"`
	TimeZone            string `json:"timezone"`
	RemoteAccessEnabled bool   `json:"remote_access_enabled"`
}

// Publisher projects coordinator snapshots onto retained MQTT state
// documents for one device.
//
// It tracks per-door transitional flags (set by the command listener
// while an action is in flight) and the admin capability, republishing
// or clearing the admin-only documents when the capability changes.
type Publisher struct {
	broker Broker
	coord  Coordinator
	log    *logging.Logger
	topics mqtt.Topics

	mu       sync.Mutex
	opening  map[int]bool
	closing  map[int]bool
	lastData coordinator.Data
	hasData  bool
}

// NewPublisher creates a publisher for the coordinator's device.
func NewPublisher(broker Broker, coord Coordinator, log *logging.Logger) *Publisher {
	return &Publisher{
		broker:  broker,
		coord:   coord,
		log:     log.With("component", "entity", "udi", coord.UDI()),
		opening: make(map[int]bool),
		closing: make(map[int]bool),
	}
}

// Start registers the publisher with the coordinator. Snapshots flip
// availability online and refresh all documents; failed cycles flip it
// offline; admin changes add or remove the admin-only documents.
func (p *Publisher) Start() {
	p.coord.AddListener(p.publishSnapshot)
	p.coord.OnCycleError(func(error) { p.publishAvailability(false) })
	p.coord.OnAdminChange(p.handleAdminChange)
}

// SetTransitional marks a door as moving in the given direction and
// republishes its state document so consumers see opening/closing
// immediately, before the device reports a settled state.
func (p *Publisher) SetTransitional(doorID int, action somweb.DoorAction) {
	p.mu.Lock()
	p.opening[doorID] = action == somweb.ActionOpen
	p.closing[doorID] = action == somweb.ActionClose
	p.mu.Unlock()

	p.republishDoor(doorID)
}

// ClearTransitional removes a door's transitional flag. The document
// reverts to the last polled status on the next republish.
func (p *Publisher) ClearTransitional(doorID int) {
	p.mu.Lock()
	delete(p.opening, doorID)
	delete(p.closing, doorID)
	p.mu.Unlock()

	p.republishDoor(doorID)
}

// Republish re-emits all documents from the given snapshot. Used when
// consumers were wired after the snapshot was published.
func (p *Publisher) Republish(data coordinator.Data) {
	p.publishSnapshot(data)
}

// publishSnapshot projects one coordinator snapshot onto the retained
// documents.
func (p *Publisher) publishSnapshot(data coordinator.Data) {
	p.mu.Lock()
	p.lastData = data
	p.hasData = true
	p.mu.Unlock()

	p.publishAvailability(true)

	for _, door := range p.coord.Doors() {
		status, ok := data.Doors[door.ID]
		if !ok {
			status = somweb.DoorUnknown
		}
		p.publishDoor(door, status)
	}

	if p.coord.IsAdmin() {
		p.publishFirmware(data)
		p.publishDiagnostics(data)
	}
}

func (p *Publisher) publishAvailability(online bool) {
	payload := availabilityOffline
	if online {
		payload = availabilityOnline
	}
	topic := p.topics.DeviceAvailability(p.coord.UDI())
	if err := p.broker.PublishRetained(topic, []byte(payload)); err != nil {
		p.log.Warn("failed to publish availability", "error", err)
	}
}

func (p *Publisher) publishDoor(door somweb.Door, status somweb.DoorStatus) {
	p.mu.Lock()
	opening := p.opening[door.ID]
	closing := p.closing[door.ID]
	p.mu.Unlock()

	doc := DoorStateDoc{
		Name:      door.Name,
		Status:    string(status),
		IsOpening: opening,
		IsClosing: closing,
	}

	switch {
	case status == somweb.DoorClosed:
		doc.Position = intPtr(positionClosed)
		doc.IsClosed = boolPtr(true)
	case status == somweb.DoorOpen:
		doc.Position = intPtr(positionOpen)
		doc.IsClosed = boolPtr(false)
	case opening || closing:
		doc.Position = intPtr(positionTransitional)
	}

	p.publishJSON(p.topics.DoorState(p.coord.UDI(), door.ID), doc)
}

// republishDoor re-emits one door's document from the last snapshot,
// typically after a transitional flag change.
func (p *Publisher) republishDoor(doorID int) {
	door, ok := p.coord.DoorByID(doorID)
	if !ok {
		return
	}

	p.mu.Lock()
	status := somweb.DoorUnknown
	if p.hasData {
		if s, ok := p.lastData.Doors[doorID]; ok {
			status = s
		}
	}
	p.mu.Unlock()

	p.publishDoor(door, status)
}

func (p *Publisher) publishFirmware(data coordinator.Data) {
	doc := FirmwareDoc{UpdateAvailable: data.FirmwareUpdateAvailable}
	if data.DeviceInfo != nil {
		doc.FirmwareVersion = data.DeviceInfo.FirmwareVersion
	}
	p.publishJSON(p.topics.FirmwareState(p.coord.UDI()), doc)
}

func (p *Publisher) publishDiagnostics(data coordinator.Data) {
	// Absent until the first successful device-info refresh.
	if data.DeviceInfo == nil {
		return
	}

	info := data.DeviceInfo
	doc := DiagnosticsDoc{
		Identifier:          info.Identifier,
		WifiSignalQuality:   info.WifiSignalQuality,
		WifiSignalLevel:     info.WifiSignalLevel,
		IPAddress:           info.IPAddress,
		TimeZone:            info.TimeZone,
		RemoteAccessEnabled: info.RemoteAccessEnabled,
	}
	p.publishJSON(p.topics.DiagnosticsState(p.coord.UDI()), doc)
}

// handleAdminChange recomputes the published document set when a
// reconnect reveals a changed admin capability.
func (p *Publisher) handleAdminChange(isAdmin bool) {
	p.log.Info("recomputing published documents", "is_admin", isAdmin)

	if isAdmin {
		p.mu.Lock()
		data := p.lastData
		has := p.hasData
		p.mu.Unlock()
		if has {
			p.publishFirmware(data)
			p.publishDiagnostics(data)
		}
		return
	}

	// An empty retained payload clears the document from the broker.
	udi := p.coord.UDI()
	for _, topic := range []string{p.topics.FirmwareState(udi), p.topics.DiagnosticsState(udi)} {
		if err := p.broker.PublishRetained(topic, nil); err != nil {
			p.log.Warn("failed to clear retained document", "topic", topic, "error", err)
		}
	}
}

func (p *Publisher) publishJSON(topic string, doc any) {
	payload, err := json.Marshal(doc)
	if err != nil {
		p.log.Error("failed to encode state document", "topic", topic, "error", err)
		return
	}
	if err := p.broker.PublishRetained(topic, payload); err != nil {
		p.log.Warn("failed to publish state document", "topic", topic, "error", err)
	}
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
