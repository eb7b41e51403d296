package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/taarskog/somweb-bridge/internal/entry"
	"github.com/taarskog/somweb-bridge/internal/hub"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/config"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/database"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/logging"
	"github.com/taarskog/somweb-bridge/internal/infrastructure/mqtt"
	"github.com/taarskog/somweb-bridge/internal/somweb"
	_ "github.com/taarskog/somweb-bridge/migrations"
)

// apiClient is a scripted device session for API tests.
type apiClient struct {
	alive  bool
	authOK bool
	udi    string
}

func (c *apiClient) IsAlive(ctx context.Context) bool { return c.alive }

func (c *apiClient) Authenticate(ctx context.Context) (somweb.AuthResult, error) {
	return somweb.AuthResult{Success: c.authOK}, nil
}

func (c *apiClient) Doors(ctx context.Context) ([]somweb.Door, error) {
	return []somweb.Door{{ID: 2, Name: "Garage"}}, nil
}

func (c *apiClient) DoorStatus(ctx context.Context, doorID int) (somweb.DoorStatus, error) {
	return somweb.DoorClosed, nil
}

func (c *apiClient) DoorAction(ctx context.Context, doorID int, action somweb.DoorAction) (bool, error) {
	return true, nil
}

func (c *apiClient) WaitForDoorState(ctx context.Context, doorID int, target somweb.DoorStatus) error {
	return nil
}

func (c *apiClient) DeviceInfo(ctx context.Context) (somweb.DeviceInfo, error) {
	return somweb.DeviceInfo{}, nil
}

func (c *apiClient) UpdateAvailable(ctx context.Context) (bool, error) { return false, nil }
func (c *apiClient) UDI() string                                       { return c.udi }
func (c *apiClient) IsAdmin() bool                                     { return false }
func (c *apiClient) Close() error                                      { return nil }

// noopBroker satisfies the entity broker without an MQTT connection.
type noopBroker struct{}

func (noopBroker) PublishRetained(topic string, payload []byte) error { return nil }
func (noopBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	return nil
}
func (noopBroker) Unsubscribe(topic string) error { return nil }

func apiConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{Host: "127.0.0.1", Port: 8095},
		WebSocket: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Polling: config.PollingConfig{
			ScanIntervalSeconds:   30,
			FirmwareCheckHours:    12,
			AliveRetrySeconds:     0,
			ActionTimeoutSeconds:  5,
			RequestTimeoutSeconds: 5,
		},
		Security: config.SecurityConfig{
			JWT:   config.JWTConfig{Secret: "test-secret", AccessTokenTTL: 60},
			Admin: config.AdminCredentials{Username: "admin", Password: "hunter2"},
		},
	}
}

// testServer builds a full API server over a temp store and a scripted
// device. The returned handler is the complete route tree.
func testServer(t *testing.T, device *apiClient) (*Server, http.Handler, *hub.Hub) {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	cfg := apiConfig()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
	repo := entry.NewRepository(db)

	h := hub.New(cfg, log, repo, noopBroker{}, nil)
	h.SetClientFactory(func(e *entry.Entry) somweb.Client { return device })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Start(ctx); err != nil {
		t.Fatalf("starting hub: %v", err)
	}
	t.Cleanup(h.Stop)

	srv, err := New(Deps{
		Config:    cfg,
		Logger:    log,
		Hub:       h,
		Repo:      repo,
		Version:   "test",
		Validator: func(in entry.Input) somweb.Client { return device },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.startedAt = time.Now()

	return srv, srv.buildRouter(), h
}

// login obtains an access token through the real login endpoint.
func login(t *testing.T, router http.Handler) string {
	t.Helper()

	body := `{"username":"admin","password":"hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	return resp.Token
}

// doJSON performs an authenticated JSON request against the router.
func doJSON(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, router, _ := testServer(t, &apiClient{alive: true, authOK: true, udi: "API00001"})

	rec := doJSON(router, http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	_, router, _ := testServer(t, &apiClient{alive: true, authOK: true, udi: "API00001"})

	body := `{"username":"admin","password":"wrong"}`
	rec := doJSON(router, http.MethodPost, "/api/v1/auth/login", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	_, router, _ := testServer(t, &apiClient{alive: true, authOK: true, udi: "API00001"})

	rec := doJSON(router, http.MethodGet, "/api/v1/entries", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", rec.Code)
	}

	rec = doJSON(router, http.MethodGet, "/api/v1/entries", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with garbage token = %d, want 401", rec.Code)
	}
}

func TestCreateEntry_Success(t *testing.T) {
	device := &apiClient{alive: true, authOK: true, udi: "API00001"}
	_, router, h := testServer(t, device)
	token := login(t, router)

	body := `{"mode":"local","url":"http://10.0.0.8","username":"u","password":"p"}`
	rec := doJSON(router, http.MethodPost, "/api/v1/entries", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created entry.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.UDI != "API00001" {
		t.Errorf("UDI = %q, want device-confirmed API00001", created.UDI)
	}
	if created.Title != "SOMweb API00001" {
		t.Errorf("Title = %q", created.Title)
	}
	if _, ok := h.Runtime(created.ID); !ok {
		t.Error("no runtime launched for the new entry")
	}
}

func TestCreateEntry_ValidationFailures(t *testing.T) {
	tests := []struct {
		name       string
		device     *apiClient
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed url",
			device:     &apiClient{alive: true, authOK: true, udi: "X"},
			body:       `{"mode":"local","url":"","username":"u","password":"p"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidURL,
		},
		{
			name:       "missing cloud udi",
			device:     &apiClient{alive: true, authOK: true, udi: "X"},
			body:       `{"mode":"cloud","username":"u","password":"p"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidUDI,
		},
		{
			name:       "unreachable device",
			device:     &apiClient{alive: false, authOK: true, udi: "X"},
			body:       `{"mode":"local","url":"http://10.0.0.8","username":"u","password":"p"}`,
			wantStatus: http.StatusBadGateway,
			wantCode:   ErrCodeCannotConnect,
		},
		{
			name:       "rejected credentials",
			device:     &apiClient{alive: true, authOK: false, udi: "X"},
			body:       `{"mode":"local","url":"http://10.0.0.8","username":"u","password":"bad"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeInvalidAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, router, _ := testServer(t, tt.device)
			token := login(t, router)

			rec := doJSON(router, http.MethodPost, "/api/v1/entries", token, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			var apiErr Error
			if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
				t.Fatalf("decoding error response: %v", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
		})
	}
}

func TestCreateEntry_DuplicateDevice(t *testing.T) {
	device := &apiClient{alive: true, authOK: true, udi: "API00001"}
	_, router, _ := testServer(t, device)
	token := login(t, router)

	body := `{"mode":"local","url":"http://10.0.0.8","username":"u","password":"p"}`
	if rec := doJSON(router, http.MethodPost, "/api/v1/entries", token, body); rec.Code != http.StatusCreated {
		t.Fatalf("first create status = %d", rec.Code)
	}

	rec := doJSON(router, http.MethodPost, "/api/v1/entries", token, body)
	if rec.Code != http.StatusConflict {
		t.Errorf("second create status = %d, want 409", rec.Code)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	_, router, _ := testServer(t, &apiClient{alive: true, authOK: true, udi: "API00001"})
	token := login(t, router)

	rec := doJSON(router, http.MethodGet, "/api/v1/entries/nope", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteEntry_StopsRuntime(t *testing.T) {
	device := &apiClient{alive: true, authOK: true, udi: "API00001"}
	_, router, h := testServer(t, device)
	token := login(t, router)

	body := `{"mode":"local","url":"http://10.0.0.8","username":"u","password":"p"}`
	rec := doJSON(router, http.MethodPost, "/api/v1/entries", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created entry.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	rec = doJSON(router, http.MethodDelete, fmt.Sprintf("/api/v1/entries/%s", created.ID), token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if _, ok := h.Runtime(created.ID); ok {
		t.Error("runtime still registered after delete")
	}
}

func TestDoorAction(t *testing.T) {
	device := &apiClient{alive: true, authOK: true, udi: "API00001"}
	_, router, h := testServer(t, device)
	token := login(t, router)

	body := `{"mode":"local","url":"http://10.0.0.8","username":"u","password":"p"}`
	rec := doJSON(router, http.MethodPost, "/api/v1/entries", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created entry.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	// Wait for the runtime's first snapshot.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rt, ok := h.Runtime(created.ID)
		if ok {
			if _, ready := rt.Coordinator().Data(); ready {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	path := fmt.Sprintf("/api/v1/entries/%s/doors/2/action", created.ID)
	rec = doJSON(router, http.MethodPost, path, token, `{"action":"open"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("action status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(router, http.MethodPost, path, token, `{"action":"sideways"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad action status = %d, want 400", rec.Code)
	}

	rec = doJSON(router, http.MethodPost,
		fmt.Sprintf("/api/v1/entries/%s/doors/99/action", created.ID), token, `{"action":"open"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown door status = %d, want 404", rec.Code)
	}
}

func TestGetState(t *testing.T) {
	device := &apiClient{alive: true, authOK: true, udi: "API00001"}
	_, router, h := testServer(t, device)
	token := login(t, router)

	body := `{"mode":"local","url":"http://10.0.0.8","username":"u","password":"p"}`
	rec := doJSON(router, http.MethodPost, "/api/v1/entries", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var created entry.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rt, ok := h.Runtime(created.ID)
		if ok {
			if _, ready := rt.Coordinator().Data(); ready {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = doJSON(router, http.MethodGet, fmt.Sprintf("/api/v1/entries/%s/state", created.ID), token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("state status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var state stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if state.UDI != "API00001" {
		t.Errorf("UDI = %q", state.UDI)
	}
	if len(state.Doors) != 1 || state.Doors[0].Status != "closed" {
		t.Errorf("doors = %+v, want one closed door", state.Doors)
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	_, router, _ := testServer(t, &apiClient{alive: true, authOK: true, udi: "API00001"})

	rec := doJSON(router, http.MethodGet, "/ws", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
