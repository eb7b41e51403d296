package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/taarskog/somweb-bridge/internal/infrastructure/config"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// fakeClient is a scripted somweb.Client. Behaviour is overridden per
// test via the function fields; call counters track interactions.
type fakeClient struct {
	aliveFn  func() bool
	authFn   func() (somweb.AuthResult, error)
	doorsFn  func() ([]somweb.Door, error)
	statusFn func(doorID int) (somweb.DoorStatus, error)
	actionFn func(doorID int, action somweb.DoorAction) (bool, error)
	waitFn   func(doorID int, target somweb.DoorStatus) error
	infoFn   func() (somweb.DeviceInfo, error)
	updateFn func() (bool, error)

	udi   string
	admin bool

	mu          sync.Mutex
	authCalls   int
	statusCalls int
	actionCalls int
	infoCalls   int
	updateCalls int
}

// newFakeClient returns a healthy admin device with two doors.
func newFakeClient() *fakeClient {
	return &fakeClient{
		aliveFn: func() bool { return true },
		authFn:  func() (somweb.AuthResult, error) { return somweb.AuthResult{Success: true}, nil },
		doorsFn: func() ([]somweb.Door, error) {
			return []somweb.Door{{ID: 1, Name: "Main"}, {ID: 2, Name: "Side"}}, nil
		},
		statusFn: func(doorID int) (somweb.DoorStatus, error) { return somweb.DoorClosed, nil },
		actionFn: func(doorID int, action somweb.DoorAction) (bool, error) { return true, nil },
		waitFn:   func(doorID int, target somweb.DoorStatus) error { return nil },
		infoFn: func() (somweb.DeviceInfo, error) {
			return somweb.DeviceInfo{FirmwareVersion: "1.27.1", WifiSignalQuality: 4, WifiSignalLevel: -60}, nil
		},
		updateFn: func() (bool, error) { return false, nil },
		udi:      "TEST1234",
		admin:    true,
	}
}

func (f *fakeClient) IsAlive(ctx context.Context) bool { return f.aliveFn() }

func (f *fakeClient) Authenticate(ctx context.Context) (somweb.AuthResult, error) {
	f.mu.Lock()
	f.authCalls++
	f.mu.Unlock()
	return f.authFn()
}

func (f *fakeClient) Doors(ctx context.Context) ([]somweb.Door, error) { return f.doorsFn() }

func (f *fakeClient) DoorStatus(ctx context.Context, doorID int) (somweb.DoorStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()
	return f.statusFn(doorID)
}

func (f *fakeClient) DoorAction(ctx context.Context, doorID int, action somweb.DoorAction) (bool, error) {
	f.mu.Lock()
	f.actionCalls++
	f.mu.Unlock()
	return f.actionFn(doorID, action)
}

func (f *fakeClient) WaitForDoorState(ctx context.Context, doorID int, target somweb.DoorStatus) error {
	return f.waitFn(doorID, target)
}

func (f *fakeClient) DeviceInfo(ctx context.Context) (somweb.DeviceInfo, error) {
	f.mu.Lock()
	f.infoCalls++
	f.mu.Unlock()
	return f.infoFn()
}

func (f *fakeClient) UpdateAvailable(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.updateCalls++
	f.mu.Unlock()
	return f.updateFn()
}

func (f *fakeClient) UDI() string   { return f.udi }
func (f *fakeClient) IsAdmin() bool { return f.admin }
func (f *fakeClient) Close() error  { return nil }

func (f *fakeClient) counts() (auth, status, action, info int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls, f.statusCalls, f.actionCalls, f.infoCalls
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func newTestCoordinator(client somweb.Client) *Coordinator {
	return New(client, testLogger(), Config{
		ScanInterval:          30 * time.Second,
		FirmwareCheckInterval: 12 * time.Hour,
	})
}

func TestSetup_PublishesInitialSnapshot(t *testing.T) {
	client := newFakeClient()
	client.statusFn = func(doorID int) (somweb.DoorStatus, error) {
		if doorID == 1 {
			return somweb.DoorOpen, nil
		}
		return somweb.DoorClosed, nil
	}
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	doors := coord.Doors()
	if len(doors) != 2 || doors[0].Name != "Main" || doors[1].Name != "Side" {
		t.Fatalf("Doors() = %+v, want Main and Side", doors)
	}

	data, ok := coord.Data()
	if !ok {
		t.Fatal("Data() not ready after Setup")
	}
	if data.Doors[1] != somweb.DoorOpen || data.Doors[2] != somweb.DoorClosed {
		t.Errorf("snapshot doors = %v, want {1:open 2:closed}", data.Doors)
	}
	if data.DeviceInfo == nil || data.DeviceInfo.FirmwareVersion != "1.27.1" {
		t.Errorf("snapshot device info = %+v, want firmware 1.27.1", data.DeviceInfo)
	}
}

func TestSetup_DoorListUnavailable(t *testing.T) {
	client := newFakeClient()
	client.doorsFn = func() ([]somweb.Door, error) {
		return nil, errors.New("connection refused")
	}
	coord := newTestCoordinator(client)

	err := coord.Setup(context.Background())
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Setup() error = %v, want ErrNotReady", err)
	}
}

func TestSetup_InitialPollFails(t *testing.T) {
	client := newFakeClient()
	client.aliveFn = func() bool { return false }
	coord := newTestCoordinator(client)

	err := coord.Setup(context.Background())
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("Setup() error = %v, want ErrNotReady", err)
	}

	if _, ok := coord.Data(); ok {
		t.Error("Data() ready after failed Setup")
	}
}

func TestRefresh_PerDoorFailureIsolation(t *testing.T) {
	client := newFakeClient()
	client.statusFn = func(doorID int) (somweb.DoorStatus, error) {
		if doorID == 2 {
			return somweb.DoorUnknown, errors.New("timeout")
		}
		return somweb.DoorOpen, nil
	}
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	data, _ := coord.Data()
	if data.Doors[1] != somweb.DoorOpen {
		t.Errorf("door 1 = %v, want open", data.Doors[1])
	}
	if data.Doors[2] != somweb.DoorUnknown {
		t.Errorf("door 2 = %v, want unknown after query failure", data.Doors[2])
	}
}

func TestRefresh_FailureKeepsPreviousSnapshot(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	before, _ := coord.Data()

	// Device goes dark and reconnection fails.
	client.aliveFn = func() bool { return false }

	err := coord.refresh(context.Background())
	if !errors.Is(err, ErrUpdateFailed) {
		t.Fatalf("refresh() error = %v, want ErrUpdateFailed", err)
	}

	after, ok := coord.Data()
	if !ok {
		t.Fatal("Data() not ready after failed refresh")
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("failed refresh replaced the snapshot")
	}
}

func TestRefresh_ReconnectRestoresPolling(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// First liveness probe fails, the reconnect path's probe succeeds.
	calls := 0
	client.aliveFn = func() bool {
		calls++
		return calls > 1
	}

	if err := coord.refresh(context.Background()); err != nil {
		t.Fatalf("refresh() error = %v, want reconnect to recover", err)
	}

	auth, _, _, _ := client.counts()
	if auth != 1 {
		t.Errorf("auth calls = %d, want 1 (reconnect)", auth)
	}
}

func TestRefresh_ReconnectAuthRejected(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	calls := 0
	client.aliveFn = func() bool {
		calls++
		return calls > 1
	}
	client.authFn = func() (somweb.AuthResult, error) {
		return somweb.AuthResult{Success: false}, nil
	}

	err := coord.refresh(context.Background())
	if !errors.Is(err, ErrUpdateFailed) {
		t.Errorf("refresh() error = %v, want ErrUpdateFailed", err)
	}
}

func TestFirmwareThrottle(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	current := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	coord.now = func() time.Time { return current }

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	_, _, _, info := client.counts()
	if info != 1 {
		t.Fatalf("info calls after setup = %d, want 1", info)
	}

	// Within the throttle window: no new check.
	current = current.Add(6 * time.Hour)
	if err := coord.refresh(context.Background()); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}
	_, _, _, info = client.counts()
	if info != 1 {
		t.Errorf("info calls inside throttle window = %d, want 1", info)
	}

	// Past the window: checked again.
	current = current.Add(7 * time.Hour)
	if err := coord.refresh(context.Background()); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}
	_, _, _, info = client.counts()
	if info != 2 {
		t.Errorf("info calls past throttle window = %d, want 2", info)
	}
}

func TestFirmwareThrottle_FailedCheckStaysDue(t *testing.T) {
	client := newFakeClient()
	client.infoFn = func() (somweb.DeviceInfo, error) {
		return somweb.DeviceInfo{}, errors.New("session expired")
	}
	coord := newTestCoordinator(client)

	// The failing firmware refresh must not fail setup or the cycle.
	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if err := coord.refresh(context.Background()); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	// Never succeeded, so every cycle retries.
	_, _, _, info := client.counts()
	if info < 2 {
		t.Errorf("info calls = %d, want retry on every cycle while never succeeded", info)
	}

	data, _ := coord.Data()
	if data.DeviceInfo != nil {
		t.Error("snapshot carries device info despite all checks failing")
	}
}

func TestRefresh_NonAdminSkipsFirmware(t *testing.T) {
	client := newFakeClient()
	client.admin = false
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := coord.refresh(context.Background()); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	_, _, _, info := client.counts()
	if info != 0 {
		t.Errorf("info calls = %d, want 0 for non-admin session", info)
	}

	data, _ := coord.Data()
	if data.DeviceInfo != nil {
		t.Error("non-admin snapshot carries device info")
	}
	if data.FirmwareUpdateAvailable {
		t.Error("non-admin snapshot reports firmware update")
	}
}

func TestExecuteDoorAction_Success(t *testing.T) {
	client := newFakeClient()
	var gotAction somweb.DoorAction
	client.actionFn = func(doorID int, action somweb.DoorAction) (bool, error) {
		gotAction = action
		return true, nil
	}
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !coord.ExecuteDoorAction(context.Background(), 1, somweb.DoorOpen) {
		t.Fatal("ExecuteDoorAction() = false, want true")
	}
	if gotAction != somweb.ActionOpen {
		t.Errorf("action sent = %v, want open", gotAction)
	}

	_, _, action, _ := client.counts()
	if action != 1 {
		t.Errorf("action calls = %d, want 1", action)
	}

	// A forced refresh must be pending.
	select {
	case <-coord.refreshCh:
	default:
		t.Error("no forced refresh scheduled after successful action")
	}
}

func TestExecuteDoorAction_RetryOnceAfterReconnect(t *testing.T) {
	client := newFakeClient()
	attempts := 0
	client.actionFn = func(doorID int, action somweb.DoorAction) (bool, error) {
		attempts++
		return attempts > 1, nil
	}
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !coord.ExecuteDoorAction(context.Background(), 1, somweb.DoorClosed) {
		t.Fatal("ExecuteDoorAction() = false, want success on retry")
	}

	auth, _, action, _ := client.counts()
	if action != 2 {
		t.Errorf("action calls = %d, want exactly 2 (original + one retry)", action)
	}
	if auth != 1 {
		t.Errorf("auth calls = %d, want 1 (reconnect between attempts)", auth)
	}
}

func TestExecuteDoorAction_ReconnectFails(t *testing.T) {
	client := newFakeClient()
	client.actionFn = func(doorID int, action somweb.DoorAction) (bool, error) {
		return false, nil
	}
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	client.aliveFn = func() bool { return false }

	if coord.ExecuteDoorAction(context.Background(), 1, somweb.DoorOpen) {
		t.Fatal("ExecuteDoorAction() = true with failed reconnect")
	}

	_, _, action, _ := client.counts()
	if action != 1 {
		t.Errorf("action calls = %d, want 1 (no retry without reconnect)", action)
	}
}

func TestExecuteDoorAction_RetryAlsoRejected(t *testing.T) {
	client := newFakeClient()
	client.actionFn = func(doorID int, action somweb.DoorAction) (bool, error) {
		return false, nil
	}
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if coord.ExecuteDoorAction(context.Background(), 1, somweb.DoorOpen) {
		t.Fatal("ExecuteDoorAction() = true, want false")
	}

	_, _, action, _ := client.counts()
	if action != 2 {
		t.Errorf("action calls = %d, want exactly 2", action)
	}
}

func TestExecuteDoorAction_WaitTimeout(t *testing.T) {
	client := newFakeClient()
	client.waitFn = func(doorID int, target somweb.DoorStatus) error {
		return somweb.ErrWaitTimeout
	}
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if coord.ExecuteDoorAction(context.Background(), 1, somweb.DoorOpen) {
		t.Error("ExecuteDoorAction() = true despite wait timeout")
	}
}

func TestAdminChangeCallback(t *testing.T) {
	client := newFakeClient()
	client.admin = false
	coord := newTestCoordinator(client)

	var mu sync.Mutex
	var changes []bool
	coord.OnAdminChange(func(isAdmin bool) {
		mu.Lock()
		changes = append(changes, isAdmin)
		mu.Unlock()
	})

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// Device firmware update grants admin; next reconnect observes it.
	client.admin = true
	calls := 0
	client.aliveFn = func() bool {
		calls++
		return calls > 1
	}

	if err := coord.refresh(context.Background()); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 || !changes[0] {
		t.Errorf("admin changes = %v, want [true]", changes)
	}
	if !coord.IsAdmin() {
		t.Error("IsAdmin() = false after admin grant")
	}
}

func TestAdminUnchanged_NoCallback(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	fired := false
	coord.OnAdminChange(func(bool) { fired = true })

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	calls := 0
	client.aliveFn = func() bool {
		calls++
		return calls > 1
	}

	if err := coord.refresh(context.Background()); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}
	if fired {
		t.Error("admin-change callback fired without a change")
	}
}

func TestListeners_ReceivePublishedSnapshot(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	var mu sync.Mutex
	var received []Data
	coord.AddListener(func(d Data) {
		mu.Lock()
		received = append(received, d)
		mu.Unlock()
	})

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("listener called %d times, want 1", len(received))
	}
	if received[0].Doors[1] != somweb.DoorClosed {
		t.Errorf("listener snapshot door 1 = %v, want closed", received[0].Doors[1])
	}
}

func TestData_ReturnsCopy(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	first, _ := coord.Data()
	first.Doors[1] = somweb.DoorOpen

	second, _ := coord.Data()
	if second.Doors[1] != somweb.DoorClosed {
		t.Error("mutating a returned snapshot affected the coordinator")
	}
}

func TestRun_PollsOnTicker(t *testing.T) {
	client := newFakeClient()
	coord := New(client, testLogger(), Config{
		ScanInterval:          10 * time.Millisecond,
		FirmwareCheckInterval: 12 * time.Hour,
	})

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	_, setupStatus, _, _ := client.counts()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	_, status, _, _ := client.counts()
	if status <= setupStatus {
		t.Errorf("status calls = %d after Run, want more than setup's %d", status, setupStatus)
	}
}

func TestRun_CycleErrorCallback(t *testing.T) {
	client := newFakeClient()
	coord := New(client, testLogger(), Config{
		ScanInterval:          10 * time.Millisecond,
		FirmwareCheckInterval: 12 * time.Hour,
	})

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	errCh := make(chan error, 1)
	coord.OnCycleError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	// Device goes dark after setup.
	client.aliveFn = func() bool { return false }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrUpdateFailed) {
			t.Errorf("cycle error = %v, want ErrUpdateFailed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cycle error callback never fired")
	}
}

func TestRequestRefresh_Coalesces(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	// Multiple requests with no running loop must not block.
	coord.RequestRefresh()
	coord.RequestRefresh()
	coord.RequestRefresh()

	if len(coord.refreshCh) != 1 {
		t.Errorf("pending refreshes = %d, want 1", len(coord.refreshCh))
	}
}

func TestDoorByID(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	if err := coord.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	door, ok := coord.DoorByID(2)
	if !ok || door.Name != "Side" {
		t.Errorf("DoorByID(2) = %+v, %v; want Side, true", door, ok)
	}

	if _, ok := coord.DoorByID(99); ok {
		t.Error("DoorByID(99) = true for unknown door")
	}
}

// Door reads can arrive from the API before and during setup retries,
// so Setup and the read paths must synchronise on the door list. Run
// with -race.
func TestDoors_ConcurrentWithSetup(t *testing.T) {
	client := newFakeClient()
	coord := newTestCoordinator(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if err := coord.Setup(context.Background()); err != nil {
				t.Errorf("Setup() error = %v", err)
				return
			}
		}
	}()

	for i := 0; i < 100; i++ {
		coord.Doors()
		coord.DoorByID(1)
	}
	<-done

	if got := len(coord.Doors()); got != 2 {
		t.Errorf("len(Doors()) = %d, want 2", got)
	}
}
