package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/netpanel/pkg/types"
)

// requestTimeout bounds every call made by the client
const requestTimeout = 10 * time.Second

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client talks to a netpanel server over HTTP
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewClient creates a client for the server at addr. addr may omit the
// scheme, in which case http is assumed.
func NewClient(addr string) (*Client, error) {
	if addr == "" {
		return nil, errors.New("server address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server address %q", addr)
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: requestTimeout},
	}, nil
}

// SetToken uses an existing bearer token instead of logging in
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login exchanges credentials for a bearer token and keeps it for later calls
func (c *Client) Login(username, password string) (*types.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok types.Token
	if err := c.send(req, &tok); err != nil {
		return nil, err
	}
	c.token = tok.AccessToken
	return &tok, nil
}

// Me returns the authenticated user
func (c *Client) Me() (*types.User, error) {
	var user types.User
	if err := c.do(http.MethodGet, "/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Configuration returns the live panel state
func (c *Client) Configuration() (*types.PanelState, error) {
	var state types.PanelState
	if err := c.do(http.MethodGet, "/network/configuration", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SavePanelState replaces the persisted editor layout
func (c *Client) SavePanelState(layout types.PanelLayout) error {
	return c.do(http.MethodPut, "/network/configuration/panelstate", layout, nil)
}

// ApplyIntnets pushes intnet membership. The report is nil when every
// machine was configured.
func (c *Client) ApplyIntnets(cfg types.IntnetConfiguration) (*types.ApplyReport, error) {
	var report *types.ApplyReport
	if err := c.do(http.MethodPut, "/network/configuration/intnets", cfg, &report); err != nil {
		return nil, err
	}
	return report, nil
}

// CreateSnapshot saves a named copy of a layout
func (c *Client) CreateSnapshot(snap *types.Snapshot) (*types.Snapshot, error) {
	var created types.Snapshot
	if err := c.do(http.MethodPost, "/network/snapshot", snap, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListSnapshots lists all snapshots
func (c *Client) ListSnapshots() ([]*types.Snapshot, error) {
	var snaps []*types.Snapshot
	if err := c.do(http.MethodGet, "/network/snapshot/all", nil, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// GetSnapshot gets a snapshot by ID
func (c *Client) GetSnapshot(id string) (*types.Snapshot, error) {
	var snap types.Snapshot
	if err := c.do(http.MethodGet, "/network/snapshot/"+url.PathEscape(id), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// RenameSnapshot renames a snapshot
func (c *Client) RenameSnapshot(id, name string) (*types.Snapshot, error) {
	var snap types.Snapshot
	path := "/network/snapshot/" + url.PathEscape(id) + "/rename/" + url.PathEscape(name)
	if err := c.do(http.MethodPost, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// DeleteSnapshot deletes a snapshot and returns what was removed
func (c *Client) DeleteSnapshot(id string) (*types.Snapshot, error) {
	var snap types.Snapshot
	if err := c.do(http.MethodDelete, "/network/snapshot/"+url.PathEscape(id), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListPresets lists all presets
func (c *Client) ListPresets() ([]*types.Preset, error) {
	var presets []*types.Preset
	if err := c.do(http.MethodGet, "/network/preset/all", nil, &presets); err != nil {
		return nil, err
	}
	return presets, nil
}

// GetPreset gets a preset by ID
func (c *Client) GetPreset(id string) (*types.Preset, error) {
	var p types.Preset
	if err := c.do(http.MethodGet, "/network/preset/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Machines returns connection data of every VM keyed by UUID
func (c *Client) Machines() (map[string]*types.MachineNetworkData, error) {
	var out map[string]*types.MachineNetworkData
	if err := c.do(http.MethodGet, "/vm/all/networkdata", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// States returns the runtime state of every VM keyed by UUID
func (c *Client) States() (map[string]*types.MachineState, error) {
	var out map[string]*types.MachineState
	if err := c.do(http.MethodGet, "/vm/all/state", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send executes req and decodes a JSON body into out. Empty bodies leave
// out untouched.
func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &body) == nil {
			apiErr.Detail = body.Detail
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
