package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/taarskog/somweb-bridge/internal/coordinator"
	"github.com/taarskog/somweb-bridge/internal/entity"
	"github.com/taarskog/somweb-bridge/internal/entry"
	"github.com/taarskog/somweb-bridge/internal/history"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/config"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// ClientFactory builds a device session for a stored entry. Replaced in
// tests.
type ClientFactory func(e *entry.Entry) somweb.Client

// SnapshotListener receives every published snapshot from every device,
// tagged with the device's UDI. Used by the WebSocket state stream.
type SnapshotListener func(udi string, data coordinator.Data)

// Hub owns one Runtime per configuration entry. There is no global
// registry: everything a runtime needs is wired here, and the API
// reaches devices only through the hub.
type Hub struct {
	cfg     *config.Config
	log     *logging.Logger
	base    *logging.Logger // un-scoped logger for component wiring
	repo    *entry.Repository
	broker  entity.Broker
	sink    history.Sink // nil disables history
	factory ClientFactory

	mu        sync.Mutex
	runtimes  map[string]*Runtime // keyed by entry ID
	listeners []SnapshotListener
	baseCtx   context.Context
}

// New creates a hub. sink may be nil when history is disabled.
func New(cfg *config.Config, log *logging.Logger, repo *entry.Repository, broker entity.Broker, sink history.Sink) *Hub {
	h := &Hub{
		cfg:      cfg,
		log:      log.With("component", "hub"),
		base:     log,
		repo:     repo,
		broker:   broker,
		sink:     sink,
		runtimes: make(map[string]*Runtime),
	}
	h.factory = h.defaultFactory
	return h
}

// SetClientFactory overrides how device sessions are built. Call before
// Start.
func (h *Hub) SetClientFactory(factory ClientFactory) {
	h.factory = factory
}

// OnSnapshot registers a listener for snapshots from all devices.
// Listeners registered before Start also cover runtimes added later.
func (h *Hub) OnSnapshot(fn SnapshotListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Start loads all stored entries and launches a runtime for each.
// ctx bounds the lifetime of every runtime started now or later.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	h.baseCtx = ctx
	h.mu.Unlock()

	entries, err := h.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}

	for _, e := range entries {
		if err := h.Add(e); err != nil {
			h.log.Error("failed to start runtime", "entry_id", e.ID, "udi", e.UDI, "error", err)
		}
	}

	h.log.Info("hub started", "devices", len(entries))
	return nil
}

// Add launches a runtime for a (newly created) entry.
func (h *Hub) Add(e *entry.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.baseCtx == nil {
		return fmt.Errorf("hub not started")
	}
	if _, exists := h.runtimes[e.ID]; exists {
		return fmt.Errorf("runtime for entry %s already exists", e.ID)
	}

	rt := h.buildRuntime(e)
	h.runtimes[e.ID] = rt

	ctx, cancel := context.WithCancel(h.baseCtx)
	rt.cancel = cancel

	go rt.run(ctx, func() { h.wire(rt) })
	return nil
}

// Remove stops and discards the runtime for an entry.
func (h *Hub) Remove(entryID string) error {
	h.mu.Lock()
	rt, ok := h.runtimes[entryID]
	if ok {
		delete(h.runtimes, entryID)
	}
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", entry.ErrEntryNotFound, entryID)
	}

	rt.stop()
	h.log.Info("runtime removed", "entry_id", entryID, "udi", rt.entry.UDI)
	return nil
}

// Reload rebuilds an entry's runtime, typically after reconfiguration
// changed its credentials or connection mode.
func (h *Hub) Reload(e *entry.Entry) error {
	if err := h.Remove(e.ID); err != nil {
		return err
	}
	return h.Add(e)
}

// Stop shuts down all runtimes and waits for them.
func (h *Hub) Stop() {
	h.mu.Lock()
	runtimes := make([]*Runtime, 0, len(h.runtimes))
	for _, rt := range h.runtimes {
		runtimes = append(runtimes, rt)
	}
	h.runtimes = make(map[string]*Runtime)
	h.mu.Unlock()

	for _, rt := range runtimes {
		rt.stop()
	}
	h.log.Info("hub stopped")
}

// Runtime returns the runtime serving an entry.
func (h *Hub) Runtime(entryID string) (*Runtime, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rt, ok := h.runtimes[entryID]
	return rt, ok
}

// Runtimes returns all live runtimes.
func (h *Hub) Runtimes() []*Runtime {
	h.mu.Lock()
	defer h.mu.Unlock()
	runtimes := make([]*Runtime, 0, len(h.runtimes))
	for _, rt := range h.runtimes {
		runtimes = append(runtimes, rt)
	}
	return runtimes
}

// buildRuntime assembles the client and coordinator for an entry.
func (h *Hub) buildRuntime(e *entry.Entry) *Runtime {
	client := h.factory(e)
	log := h.log.With("udi", e.UDI)

	coord := coordinator.New(client, log, coordinator.Config{
		ScanInterval:          h.cfg.ScanInterval(),
		FirmwareCheckInterval: h.cfg.FirmwareCheckInterval(),
	})

	return &Runtime{
		entry:      e,
		client:     client,
		coord:      coord,
		log:        log,
		aliveRetry: h.cfg.AliveRetryInterval(),
		done:       make(chan struct{}),
	}
}

// wire attaches the MQTT projections, history recording, and the hub's
// snapshot broadcast to a runtime whose setup just succeeded. Called
// once per runtime, from the runtime goroutine.
func (h *Hub) wire(rt *Runtime) {
	pub := entity.NewPublisher(h.broker, rt.coord, h.base)
	pub.Start()

	cmds := entity.NewCommandListener(h.broker, rt.coord, pub, h.base,
		byte(h.cfg.MQTT.QoS), h.cfg.ActionTimeout())
	if err := cmds.Start(); err != nil {
		rt.log.Error("failed to subscribe to door commands", "error", err)
	} else {
		rt.cmds = cmds
	}

	var rec *history.Recorder
	if h.sink != nil {
		rec = history.NewRecorder(h.sink, rt.coord.UDI(), h.base)
		rt.coord.AddListener(rec.Record)
	}

	udi := rt.coord.UDI()
	broadcast := func(data coordinator.Data) {
		h.mu.Lock()
		listeners := make([]SnapshotListener, len(h.listeners))
		copy(listeners, h.listeners)
		h.mu.Unlock()
		for _, fn := range listeners {
			fn(udi, data)
		}
	}
	rt.coord.AddListener(broadcast)

	// Replay the setup snapshot: it was published before any of the
	// consumers above were registered.
	if data, ok := rt.coord.Data(); ok {
		pub.Republish(data)
		if rec != nil {
			rec.Record(data)
		}
		broadcast(data)
	}
}

// defaultFactory builds real HTTP sessions per the entry's mode.
func (h *Hub) defaultFactory(e *entry.Entry) somweb.Client {
	timeout := somweb.WithTimeout(h.cfg.RequestTimeout())
	if e.Mode == entry.ModeCloud {
		return somweb.NewCloudClient(e.UDI, e.Username, e.Password, timeout)
	}
	return somweb.NewLocalClient(e.URL, e.Username, e.Password, timeout)
}
