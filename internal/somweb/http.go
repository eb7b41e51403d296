package somweb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// cloudBaseURL is the per-device cloud relay address. The UDI is the
// subdomain, so cloud sessions need no configured URL.
const cloudBaseURL = "https://%s.somweb.world"

// Session client tunables. The device is a small embedded board; status
// polling faster than once a second gains nothing.
const (
	defaultRequestTimeout = 10 * time.Second
	waitPollInterval      = 1 * time.Second
	waitTimeout           = 60 * time.Second
)

// The device serves server-rendered pages; the session token, UDI, admin
// flag and door list are scraped from the post-login page.
var (
	tokenPattern = regexp.MustCompile(`id="webtoken"[^>]*value="([^"]+)"`)
	udiPattern   = regexp.MustCompile(`id="udi"[^>]*value="([^"]+)"`)
	adminPattern = regexp.MustCompile(`id="isadmin"[^>]*value="1"`)
	doorPattern  = regexp.MustCompile(`id="door-(\d+)"[^>]*data-name="([^"]+)"`)
)

// HTTPClient is the Client implementation speaking the SOMweb device's
// HTTP interface. One HTTPClient holds one session; it is safe for
// concurrent use, though the coordinator serialises all calls anyway.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu      sync.Mutex
	token   string
	udi     string
	isAdmin bool
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// NewLocalClient creates a session client for a device reachable at a
// local URL, e.g. http://192.168.1.20.
func NewLocalClient(baseURL, username, password string, opts ...Option) *HTTPClient {
	return newClient(strings.TrimRight(baseURL, "/"), username, password, opts...)
}

// NewCloudClient creates a session client routed through the vendor's
// cloud relay for the given UDI.
func NewCloudClient(udi, username, password string, opts ...Option) *HTTPClient {
	return newClient(fmt.Sprintf(cloudBaseURL, udi), username, password, opts...)
}

func newClient(baseURL, username, password string, opts ...Option) *HTTPClient {
	jar, _ := cookiejar.New(nil)
	c := &HTTPClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		http: &http.Client{
			Timeout: defaultRequestTimeout,
			Jar:     jar,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsAlive probes the device's unauthenticated liveness page.
func (c *HTTPClient) IsAlive(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/blank.html", nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	return resp.StatusCode == http.StatusOK
}

// Authenticate performs the form login and scrapes the session token,
// UDI and admin flag from the returned page. A rejected login yields
// AuthResult{Success: false} with a nil error.
func (c *HTTPClient) Authenticate(ctx context.Context) (AuthResult, error) {
	form := url.Values{
		"login":    {c.username},
		"pass":     {c.password},
		"send":     {"Sign in"},
		"loginsub": {"true"},
	}

	body, err := c.postForm(ctx, "/index.php?op=authenticate", form)
	if err != nil {
		return AuthResult{}, err
	}

	match := tokenPattern.FindStringSubmatch(body)
	if match == nil {
		// No token on the page means the device re-served the login
		// form: wrong credentials, not a transport problem.
		return AuthResult{Success: false}, nil
	}

	c.mu.Lock()
	c.token = match[1]
	if m := udiPattern.FindStringSubmatch(body); m != nil {
		c.udi = m[1]
	}
	c.isAdmin = adminPattern.MatchString(body)
	c.mu.Unlock()

	return AuthResult{Success: true}, nil
}

// Doors scrapes the door list from the device's main page. Door IDs and
// names are device-assigned and stable across sessions.
func (c *HTTPClient) Doors(ctx context.Context) ([]Door, error) {
	token, err := c.currentToken()
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/index.php?op=config&webtoken="+url.QueryEscape(token))
	if err != nil {
		return nil, err
	}

	matches := doorPattern.FindAllStringSubmatch(body, -1)
	doors := make([]Door, 0, len(matches))
	for _, m := range matches {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		doors = append(doors, Door{ID: id, Name: m[2]})
	}

	if len(doors) == 0 {
		return nil, fmt.Errorf("%w: no doors found on device page", ErrCommunication)
	}
	return doors, nil
}

// DoorStatus queries one door's state. The endpoint answers "1" for
// open and "0" for closed; anything else maps to DoorUnknown without an
// error, since a transitioning door reports neither.
func (c *HTTPClient) DoorStatus(ctx context.Context, doorID int) (DoorStatus, error) {
	// The bit parameter is a cache-buster the device firmware requires.
	path := fmt.Sprintf("/isg/statusDoor.php?numdoor=%d&status=1&bit=%d", doorID, time.Now().UnixMilli())

	body, err := c.get(ctx, path)
	if err != nil {
		return DoorUnknown, err
	}

	switch strings.TrimSpace(body) {
	case "1":
		return DoorOpen, nil
	case "0":
		return DoorClosed, nil
	default:
		return DoorUnknown, nil
	}
}

// DoorAction sends an open or close command. The device acknowledges
// with "OK"; any other body means the command was rejected, typically
// because the session token expired.
func (c *HTTPClient) DoorAction(ctx context.Context, doorID int, action DoorAction) (bool, error) {
	token, err := c.currentToken()
	if err != nil {
		return false, err
	}

	status := 0
	if action == ActionOpen {
		status = 1
	}
	path := fmt.Sprintf("/isg/opendoor.php?numdoor=%d&status=%d&webtoken=%s",
		doorID, status, url.QueryEscape(token))

	body, err := c.get(ctx, path)
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(body) == "OK", nil
}

// WaitForDoorState polls the door until it reports the target status.
// The wait window is owned here; callers add no timeout of their own.
func (c *HTTPClient) WaitForDoorState(ctx context.Context, doorID int, target DoorStatus) error {
	deadline := time.Now().Add(waitTimeout)
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		status, err := c.DoorStatus(ctx, doorID)
		if err == nil && status == target {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: door %d did not reach %s", ErrWaitTimeout, doorID, target)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DeviceInfo fetches device-level information. The endpoint is only
// served to administrator sessions.
func (c *HTTPClient) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	token, err := c.currentToken()
	if err != nil {
		return DeviceInfo{}, err
	}

	body, err := c.get(ctx, "/isg/systemInfo.php?webtoken="+url.QueryEscape(token))
	if err != nil {
		return DeviceInfo{}, err
	}

	var info DeviceInfo
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: parsing device info: %v", ErrCommunication, err)
	}
	return info, nil
}

// UpdateAvailable asks the device whether newer firmware exists.
func (c *HTTPClient) UpdateAvailable(ctx context.Context) (bool, error) {
	token, err := c.currentToken()
	if err != nil {
		return false, err
	}

	body, err := c.get(ctx, "/isg/checkForUpdate.php?webtoken="+url.QueryEscape(token))
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(body) == "1", nil
}

// UDI returns the device identifier scraped at authentication, or an
// empty string before the first successful Authenticate.
func (c *HTTPClient) UDI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.udi
}

// IsAdmin reports the admin capability of the current session.
func (c *HTTPClient) IsAdmin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isAdmin
}

// Close releases idle connections. The device has no logout endpoint;
// sessions expire server-side.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) currentToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", ErrNotAuthenticated
	}
	return c.token, nil
}

func (c *HTTPClient) get(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	return c.do(req)
}

func (c *HTTPClient) postForm(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return "", fmt.Errorf("%w: unexpected status %d", ErrCommunication, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrCommunication, err)
	}
	return string(body), nil
}
