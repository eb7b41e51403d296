package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// Data is the published snapshot of one device's state. It is replaced
// wholesale on every successful poll cycle; consumers never see a
// partially updated snapshot.
type Data struct {
	// DeviceInfo is nil until the first successful device-info refresh
	// and for non-admin sessions.
	DeviceInfo *somweb.DeviceInfo

	// Doors maps door ID to its last observed status.
	Doors map[int]somweb.DoorStatus

	// FirmwareUpdateAvailable reports whether newer firmware exists.
	// Always false for non-admin sessions.
	FirmwareUpdateAvailable bool

	// UpdatedAt is when this snapshot was published.
	UpdatedAt time.Time
}

// Listener receives each published snapshot. Listeners are called
// synchronously from the poll goroutine and must not block.
type Listener func(Data)

// Config holds the coordinator's timing parameters.
type Config struct {
	ScanInterval          time.Duration
	FirmwareCheckInterval time.Duration
}

// Coordinator manages the polling lifecycle for a single SOMweb device.
//
// Setup and Run are called once each; Run blocks until its context is
// cancelled. Data, Doors, DoorByID, ExecuteDoorAction and
// RequestRefresh are safe to call from any goroutine.
type Coordinator struct {
	client somweb.Client
	log    *logging.Logger
	cfg    Config

	// now is replaceable for throttle tests.
	now func() time.Time

	// Firmware cache, touched only by Setup and the poll goroutine.
	deviceInfo        *somweb.DeviceInfo
	updateAvailable   bool
	lastFirmwareCheck time.Time

	refreshCh chan struct{}

	mu sync.RWMutex
	// doors is fetched during Setup and never re-fetched. Setup retries
	// can overlap reads from other goroutines, so it lives under mu.
	doors         []somweb.Door
	data          Data
	hasData       bool
	isAdmin       bool
	listeners     []Listener
	onAdminChange func(isAdmin bool)
	onCycleError  func(err error)
}

// New creates a coordinator for the given device session.
func New(client somweb.Client, log *logging.Logger, cfg Config) *Coordinator {
	return &Coordinator{
		client:    client,
		log:       log.With("component", "coordinator"),
		cfg:       cfg,
		now:       time.Now,
		refreshCh: make(chan struct{}, 1),
	}
}

// Setup fetches the static door list and performs the initial data
// fetch. For admin sessions it also runs the first firmware/device-info
// refresh synchronously so the first snapshot is complete.
//
// Failures return ErrNotReady: the device may be offline right now, and
// the caller is expected to retry later.
func (c *Coordinator) Setup(ctx context.Context) error {
	doors, err := c.client.Doors(ctx)
	if err != nil {
		return fmt.Errorf("%w: fetching door list: %v", ErrNotReady, err)
	}
	c.log.Debug("discovered doors", "udi", c.client.UDI(), "count", len(doors))

	c.mu.Lock()
	c.doors = doors
	c.isAdmin = c.client.IsAdmin()
	admin := c.isAdmin
	c.mu.Unlock()

	if admin {
		c.refreshFirmwareInfo(ctx)
	}

	if err := c.refresh(ctx); err != nil {
		return fmt.Errorf("%w: initial refresh: %v", ErrNotReady, err)
	}
	return nil
}

// Run executes poll cycles until ctx is cancelled. Cycles are strictly
// sequential: a forced refresh arriving mid-cycle waits for the current
// cycle to finish.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.refreshCh:
		}

		if err := c.refresh(ctx); err != nil {
			c.log.Warn("poll cycle failed", "udi", c.client.UDI(), "error", err)

			c.mu.RLock()
			fn := c.onCycleError
			c.mu.RUnlock()
			if fn != nil {
				fn(err)
			}
		}
	}
}

// RequestRefresh schedules one out-of-band poll cycle. Non-blocking;
// requests arriving while one is already pending coalesce.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// Data returns the current snapshot and whether one has been published
// yet. The returned snapshot is a copy; callers may not affect the
// coordinator through it.
func (c *Coordinator) Data() (Data, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasData {
		return Data{}, false
	}

	snapshot := c.data
	snapshot.Doors = make(map[int]somweb.DoorStatus, len(c.data.Doors))
	for id, status := range c.data.Doors {
		snapshot.Doors[id] = status
	}
	return snapshot, true
}

// Doors returns the static door list in device order.
func (c *Coordinator) Doors() []somweb.Door {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doors := make([]somweb.Door, len(c.doors))
	copy(doors, c.doors)
	return doors
}

// DoorByID looks up a door in the static list.
func (c *Coordinator) DoorByID(doorID int) (somweb.Door, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, door := range c.doors {
		if door.ID == doorID {
			return door, true
		}
	}
	return somweb.Door{}, false
}

// UDI returns the device identifier of the owned session.
func (c *Coordinator) UDI() string {
	return c.client.UDI()
}

// IsAdmin reports the admin capability as last observed. It can change
// across reconnects; register OnAdminChange to be told when it does.
func (c *Coordinator) IsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isAdmin
}

// AddListener registers a snapshot listener. Listeners added after Run
// starts receive only subsequent snapshots.
func (c *Coordinator) AddListener(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// OnAdminChange registers the single callback fired when a reconnect
// reveals a changed admin capability. Must be set before Run.
func (c *Coordinator) OnAdminChange(fn func(isAdmin bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAdminChange = fn
}

// OnCycleError registers the single callback fired when a poll cycle
// fails as a whole. Consumers use it to flip device availability;
// successful snapshots flip it back via the listeners.
func (c *Coordinator) OnCycleError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCycleError = fn
}

// ExecuteDoorAction drives a door to the target state.
//
// The command is sent once; if the device rejects it (typically an
// expired session token) the coordinator reconnects and retries exactly
// once. After acceptance it waits for the door to reach the target
// state, then forces an out-of-band refresh so consumers see the final
// position promptly. All failure modes collapse to false.
func (c *Coordinator) ExecuteDoorAction(ctx context.Context, doorID int, target somweb.DoorStatus) bool {
	action := target.Action()

	doorName := fmt.Sprintf("ID %d", doorID)
	if door, ok := c.DoorByID(doorID); ok {
		doorName = door.Name
	}
	c.log.Debug("executing door action", "door", doorName, "action", action)

	ok, err := c.client.DoorAction(ctx, doorID, action)
	if err != nil || !ok {
		c.log.Debug("door action rejected, reconnecting", "door", doorName, "error", err)
		if !c.reconnect(ctx) {
			return false
		}
		ok, err = c.client.DoorAction(ctx, doorID, action)
		if err != nil || !ok {
			c.log.Warn("door action failed after reconnect", "door", doorName, "error", err)
			return false
		}
	}

	if err := c.client.WaitForDoorState(ctx, doorID, target); err != nil {
		c.log.Warn("door did not reach target state", "door", doorName, "target", target, "error", err)
		return false
	}

	c.log.Debug("door reached target state", "door", doorName, "target", target)
	c.RequestRefresh()
	return true
}

// refresh runs one poll cycle.
func (c *Coordinator) refresh(ctx context.Context) error {
	if !c.client.IsAlive(ctx) {
		c.log.Debug("device not alive, attempting reconnect", "udi", c.client.UDI())
		if !c.reconnect(ctx) {
			return fmt.Errorf("%w: device %s is not reachable", ErrUpdateFailed, c.client.UDI())
		}
	}

	doors := c.Doors()
	statuses := make(map[int]somweb.DoorStatus, len(doors))
	for _, door := range doors {
		status, err := c.client.DoorStatus(ctx, door.ID)
		if err != nil {
			c.log.Warn("failed to get door status", "door", door.Name, "error", err)
			statuses[door.ID] = somweb.DoorUnknown
			continue
		}
		statuses[door.ID] = status
	}

	if c.IsAdmin() && c.firmwareCheckDue() {
		c.refreshFirmwareInfo(ctx)
	}

	c.publish(statuses)
	return nil
}

// firmwareCheckDue reports whether the firmware throttle has elapsed.
// A check that has never succeeded is always due.
func (c *Coordinator) firmwareCheckDue() bool {
	if c.lastFirmwareCheck.IsZero() {
		return true
	}
	return c.now().Sub(c.lastFirmwareCheck) >= c.cfg.FirmwareCheckInterval
}

// refreshFirmwareInfo updates the device info and firmware availability
// cache. The throttle timestamp advances only on full success, so a
// failed check is retried on the next cycle. Failures never propagate
// into the poll cycle.
func (c *Coordinator) refreshFirmwareInfo(ctx context.Context) {
	info, err := c.client.DeviceInfo(ctx)
	if err != nil {
		c.log.Debug("failed to update device info", "error", err)
		return
	}

	available, err := c.client.UpdateAvailable(ctx)
	if err != nil {
		c.log.Debug("failed to check firmware availability", "error", err)
		return
	}

	c.deviceInfo = &info
	c.updateAvailable = available
	c.lastFirmwareCheck = c.now()
	c.log.Debug("firmware info updated", "update_available", available)
}

// reconnect attempts to restore a dead session: liveness gate first,
// then re-authentication. Any error is a failure; nothing propagates.
// A successful reconnect re-checks the admin capability and fires the
// admin-change callback if it differs.
func (c *Coordinator) reconnect(ctx context.Context) bool {
	if !c.client.IsAlive(ctx) {
		c.log.Debug("device not alive", "udi", c.client.UDI())
		return false
	}

	result, err := c.client.Authenticate(ctx)
	if err != nil {
		c.log.Warn("re-authentication error", "udi", c.client.UDI(), "error", err)
		return false
	}
	if !result.Success {
		c.log.Warn("re-authentication rejected", "udi", c.client.UDI())
		return false
	}

	c.log.Debug("re-authenticated", "udi", c.client.UDI())
	c.checkAdminChange()
	return true
}

// checkAdminChange compares the client's admin capability against the
// last observed value and fires the admin-change callback on a change.
func (c *Coordinator) checkAdminChange() {
	admin := c.client.IsAdmin()

	c.mu.Lock()
	changed := admin != c.isAdmin
	c.isAdmin = admin
	fn := c.onAdminChange
	c.mu.Unlock()

	if changed {
		c.log.Info("admin capability changed", "udi", c.client.UDI(), "is_admin", admin)
		if fn != nil {
			fn(admin)
		}
	}
}

// publish replaces the snapshot wholesale and notifies listeners.
func (c *Coordinator) publish(statuses map[int]somweb.DoorStatus) {
	snapshot := Data{
		DeviceInfo:              c.deviceInfo,
		Doors:                   statuses,
		FirmwareUpdateAvailable: c.updateAvailable,
		UpdatedAt:               c.now(),
	}

	c.mu.Lock()
	c.data = snapshot
	c.hasData = true
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
