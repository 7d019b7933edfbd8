package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cuemby/netpanel/pkg/events"
	"github.com/cuemby/netpanel/pkg/inventory"
	"github.com/cuemby/netpanel/pkg/network"
	"github.com/cuemby/netpanel/pkg/preset"
	"github.com/cuemby/netpanel/pkg/security"
	"github.com/cuemby/netpanel/pkg/snapshot"
	"github.com/cuemby/netpanel/pkg/storage"
	"github.com/cuemby/netpanel/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

type authorizerFunc func(*types.User) error

func (f authorizerFunc) Authorize(u *types.User) error { return f(u) }

// failingStore rejects every write
type failingStore struct {
	storage.DocumentStore
}

func (failingStore) Write(string, any) error { return errors.New("disk full") }

type harness struct {
	t      *testing.T
	srv    *Server
	store  *storage.FileStore
	users  *security.UsersFile
	tokens *security.TokenIssuer
	deps   Deps
}

type harnessOption func(*Config, *Deps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	users, err := security.NewUsersFile(filepath.Join(t.TempDir(), "users.json"), security.WithCost(bcrypt.MinCost))
	require.NoError(t, err)
	_, err = users.Add("alice", "Alice Liddell", "wonderland")
	require.NoError(t, err)

	tokens, err := security.NewTokenIssuer(testSecret, "HS256", time.Minute)
	require.NoError(t, err)

	inv := inventory.NewDemoInventory()
	deps := Deps{
		Store:     store,
		Snapshots: snapshot.NewService(store, nil),
		Presets:   preset.NewService(store, nil),
		Network:   network.NewService(store, inv, nil, nil),
		Inventory: inv,
		Identity:  users,
		Tokens:    tokens,
	}
	cfg := Config{
		Listen:         "127.0.0.1:0",
		AllowedOrigins: []string{"http://localhost:3000"},
		LoginRate:      100,
		LoginBurst:     100,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return &harness{t: t, srv: srv, store: store, users: users, tokens: tokens, deps: deps}
}

func (h *harness) token(username string) string {
	h.t.Helper()
	tok, err := h.tokens.Issue(username)
	require.NoError(h.t, err)
	return tok.AccessToken
}

// do sends body as JSON unless it is already a string
func (h *harness) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func (h *harness) login(username, password string) *httptest.ResponseRecorder {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Detail
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	w := h.login("alice", "wonderland")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tok := decode[types.Token](t, w)
	assert.Equal(t, "bearer", tok.TokenType)
	sub, err := h.tokens.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)

	w = h.do(http.MethodGet, "/user", nil, tok.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode[types.User](t, w)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "Alice Liddell", user.FullName)
}

func TestLogin_Rejected(t *testing.T) {
	h := newHarness(t)

	for _, creds := range [][2]string{{"alice", "wrong"}, {"nobody", "wonderland"}} {
		w := h.login(creds[0], creds[1])
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "Incorrect username or password.", detail(t, w))
	}

	w := h.login("", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Deps) {
		cfg.LoginRate = 0.001
		cfg.LoginBurst = 2
	})

	assert.Equal(t, http.StatusUnauthorized, h.login("alice", "wrong").Code)
	assert.Equal(t, http.StatusOK, h.login("alice", "wonderland").Code)

	w := h.login("alice", "wonderland")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, detail(t, w))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestUnauthenticated(t *testing.T) {
	h := newHarness(t)

	otherSecret, err := security.NewTokenIssuer("another-secret", "HS256", time.Minute)
	require.NoError(t, err)
	foreign, err := otherSecret.Issue("alice")
	require.NoError(t, err)

	_, err = h.users.Add("carol", "", "secret-pw")
	require.NoError(t, err)
	disabledToken := h.token("carol")
	require.NoError(t, h.users.SetDisabled("carol", true))

	tokens := map[string]string{
		"missing":       "",
		"garbage":       "garbage",
		"wrong secret":  foreign.AccessToken,
		"unknown user":  h.token("mallory"),
		"disabled user": disabledToken,
	}
	paths := []string{"/user", "/network/configuration", "/network/snapshot/all", "/vm/all/state"}

	for name, token := range tokens {
		for _, path := range paths {
			t.Run(name+path, func(t *testing.T) {
				w := h.do(http.MethodGet, path, nil, token)
				assert.Equal(t, http.StatusUnauthorized, w.Code)
				assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
				assert.Equal(t, "Could not validate credentials.", detail(t, w))
			})
		}
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc123", want: "abc123"},
		{header: "bearer abc123", want: "abc123"},
		{header: "Basic abc123", want: ""},
		{header: "abc123", want: ""},
		{header: "Bearer ", want: ""},
		{header: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Request.Header.Set("Authorization", tt.header)
			assert.Equal(t, tt.want, extractBearerToken(c))
		})
	}
}

func TestAccessGroup(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Authorizer = authorizerFunc(func(u *types.User) error {
			if u.Username == "alice" {
				return security.ErrForbidden
			}
			return nil
		})
	})
	token := h.token("alice")

	w := h.do(http.MethodGet, "/network/snapshot/all", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "User does not belong to the access group.", detail(t, w))

	// /user only needs a valid token
	w = h.do(http.MethodGet, "/user", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAccessGroup_Misconfigured(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Authorizer = authorizerFunc(func(*types.User) error {
			return errors.New("access group gid=4242: unknown group")
		})
	})

	w := h.do(http.MethodGet, "/network/configuration", nil, h.token("alice"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error.", detail(t, w))
}

func TestSnapshotLifecycle(t *testing.T) {
	h := newHarness(t)
	token := h.token("alice")

	body := map[string]any{
		"name":     "Test-1",
		"nodes":    []any{map[string]any{"id": "n1", "type": "machine"}},
		"viewport": map[string]any{"x": 10, "y": 20, "zoom": 1.5},
	}
	w := h.do(http.MethodPost, "/network/snapshot", body, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[types.Snapshot](t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Test-1", created.Name)

	w = h.do(http.MethodGet, "/network/snapshot/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[types.Snapshot](t, w)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Test-1", got.Name)
	require.Len(t, got.Nodes, 1)
	assert.JSONEq(t, `{"id":"n1","type":"machine"}`, string(got.Nodes[0]))

	w = h.do(http.MethodGet, "/network/snapshot/all", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Snapshot](t, w), 1)

	w = h.do(http.MethodPost, "/network/snapshot/"+created.ID+"/rename/Lab%202", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Lab 2", decode[types.Snapshot](t, w).Name)

	w = h.do(http.MethodDelete, "/network/snapshot/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[types.Snapshot](t, w)
	assert.Equal(t, created.ID, deleted.ID)
	assert.Equal(t, "Lab 2", deleted.Name)

	w = h.do(http.MethodGet, "/network/snapshot/"+created.ID, nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "snapshot of id="+created.ID+" not found", detail(t, w))

	w = h.do(http.MethodGet, "/network/snapshot/all", nil, token)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSnapshotErrors(t *testing.T) {
	h := newHarness(t)
	token := h.token("alice")

	w := h.do(http.MethodPost, "/network/snapshot", map[string]any{"name": "Lab1", "nodes": []any{}}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	lab1 := decode[types.Snapshot](t, w)

	w = h.do(http.MethodPost, "/network/snapshot", map[string]any{"name": "Lab2", "nodes": []any{}, "deletable": false}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	locked := decode[types.Snapshot](t, w)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{name: "invalid name", method: http.MethodPost, path: "/network/snapshot", body: map[string]any{"name": "x"}, status: http.StatusBadRequest},
		{name: "name with leading digit", method: http.MethodPost, path: "/network/snapshot", body: map[string]any{"name": "1abc"}, status: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/network/snapshot", body: `{"name":`, status: http.StatusBadRequest},
		{name: "duplicate name", method: http.MethodPost, path: "/network/snapshot", body: map[string]any{"name": "Lab1"}, status: http.StatusConflict},
		{name: "rename invalid", method: http.MethodPost, path: "/network/snapshot/" + lab1.ID + "/rename/ab", status: http.StatusBadRequest},
		{name: "rename conflict", method: http.MethodPost, path: "/network/snapshot/" + lab1.ID + "/rename/Lab2", status: http.StatusConflict},
		{name: "rename unknown", method: http.MethodPost, path: "/network/snapshot/nope/rename/Lab3", status: http.StatusNotFound},
		{name: "delete unknown", method: http.MethodDelete, path: "/network/snapshot/nope", status: http.StatusNotFound},
		{name: "delete protected", method: http.MethodDelete, path: "/network/snapshot/" + locked.ID, status: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(tt.method, tt.path, tt.body, token)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, detail(t, w))
		})
	}

	// nothing above changed the collection
	w = h.do(http.MethodGet, "/network/snapshot/all", nil, token)
	assert.Len(t, decode[[]types.Snapshot](t, w), 2)
}

func TestSnapshotRename_SameName(t *testing.T) {
	h := newHarness(t)
	token := h.token("alice")

	w := h.do(http.MethodPost, "/network/snapshot", map[string]any{"name": "Lab1"}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[types.Snapshot](t, w).ID

	w = h.do(http.MethodPost, "/network/snapshot/"+id+"/rename/Lab1", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfiguration(t *testing.T) {
	h := newHarness(t)
	token := h.token("alice")

	w := h.do(http.MethodGet, "/network/configuration", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[types.PanelState](t, w)
	assert.Empty(t, state.Nodes)
	assert.Equal(t, types.DefaultViewport(), state.Viewport)
	assert.Len(t, state.Intnets, 2, "intnets come from the demo inventory")

	layout := `{"nodes":[{"id":"a"},{"id":"b"}],"edges":[{"source":"a","target":"b"}],"viewport":{"x":1,"y":2,"zoom":0.5}}`
	w = h.do(http.MethodPut, "/network/configuration/panelstate", layout, token)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Empty(t, w.Body.String())

	w = h.do(http.MethodGet, "/network/configuration", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	state = decode[types.PanelState](t, w)
	assert.Len(t, state.Nodes, 2)
	assert.Len(t, state.Edges, 1)
	assert.Equal(t, &types.Viewport{X: 1, Y: 2, Zoom: 0.5}, state.Viewport)

	w = h.do(http.MethodPut, "/network/configuration/panelstate", `[1,2`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfiguration_WriteFailure(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Network = network.NewService(failingStore{d.Store}, d.Inventory, nil, nil)
	})

	w := h.do(http.MethodPut, "/network/configuration/panelstate", `{"nodes":[]}`, h.token("alice"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error.", detail(t, w))
}

func TestIntnets(t *testing.T) {
	var failing bool
	h := newHarness(t, func(_ *Config, d *Deps) {
		applier := network.ApplierFunc(func(_ context.Context, cfg types.IntnetConfiguration) (*types.ApplyReport, error) {
			report := &types.ApplyReport{Applied: []string{}}
			for _, id := range cfg.MachineIDs() {
				if failing && id == "m2" {
					report.Failures = map[string]string{id: "guest agent unreachable"}
					continue
				}
				report.Applied = append(report.Applied, id)
			}
			return report, nil
		})
		d.Network = network.NewService(d.Store, d.Inventory, applier, nil)
	})
	token := h.token("alice")
	body := `{"lan":{"id":"lan","machines":["m1","m2"]}}`

	w := h.do(http.MethodPut, "/network/configuration/intnets", body, token)
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	failing = true
	w = h.do(http.MethodPut, "/network/configuration/intnets", body, token)
	require.Equal(t, http.StatusMultiStatus, w.Code)
	report := decode[types.ApplyReport](t, w)
	assert.Equal(t, []string{"m1"}, report.Applied)
	assert.Equal(t, map[string]string{"m2": "guest agent unreachable"}, report.Failures)

	w = h.do(http.MethodPut, "/network/configuration/intnets", `{"lan":{"id":"dmz","machines":[]}}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPut, "/network/configuration/intnets", `"lan"`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresets(t *testing.T) {
	h := newHarness(t)
	token := h.token("alice")

	imported, err := h.deps.Presets.Import(context.Background(), []*types.Preset{
		{Name: "Grid", Data: json.RawMessage(`{"variables":{"cols":"4"}}`)},
		{Name: "Ring"},
	})
	require.NoError(t, err)

	w := h.do(http.MethodGet, "/network/preset/all", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]types.Preset](t, w)
	require.Len(t, all, 2)
	assert.Equal(t, "Grid", all[0].Name)

	w = h.do(http.MethodGet, "/network/preset/"+imported[0].ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"variables":{"cols":"4"}}`, string(decode[types.Preset](t, w).Data))

	w = h.do(http.MethodGet, "/network/preset/unknown", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "preset of id=unknown not found", detail(t, w))

	// presets are read-only over HTTP
	w = h.do(http.MethodPost, "/network/preset/all", `{}`, token)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestVirtualMachines(t *testing.T) {
	h := newHarness(t)
	token := h.token("alice")
	const desktop1 = "b38350cf-105f-4ecd-8eb4-3d9370d39f0e"

	w := h.do(http.MethodGet, "/vm/all/networkdata", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	machines := decode[map[string]types.MachineNetworkData](t, w)
	assert.Len(t, machines, 4)
	assert.Equal(t, 1001, machines[desktop1].Port)

	w = h.do(http.MethodGet, "/vm/all/state", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string]types.MachineState](t, w), 4)

	w = h.do(http.MethodGet, "/vm/"+desktop1+"/networkdata", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "desktop", decode[types.MachineNetworkData](t, w).Group)

	w = h.do(http.MethodGet, "/vm/"+desktop1+"/state", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[types.MachineState](t, w).Active)

	for _, path := range []string{"/vm/unknown/networkdata", "/vm/unknown/state"} {
		w = h.do(http.MethodGet, path, nil, token)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
}

func TestCORS(t *testing.T) {
	h := newHarness(t)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/network/snapshot/all", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		req.Header.Set("Access-Control-Request-Headers", "authorization")
		w := httptest.NewRecorder()
		h.srv.Handler().ServeHTTP(w, req)
		return w
	}

	w := preflight("http://localhost:3000")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "authorization", w.Header().Get("Access-Control-Allow-Headers"))

	w = preflight("http://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/user", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryAndNotFound(t *testing.T) {
	h := newHarness(t)
	h.srv.engine.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := h.do(http.MethodGet, "/boom", nil, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error.", detail(t, w))

	w = h.do(http.MethodGet, "/does/not/exist", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", detail(t, w))
}

func TestEventsCarryActor(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	h := newHarness(t, func(_ *Config, d *Deps) {
		d.Snapshots = snapshot.NewService(d.Store, broker)
	})

	w := h.do(http.MethodPost, "/network/snapshot", map[string]any{"name": "Audit"}, h.token("alice"))
	require.Equal(t, http.StatusCreated, w.Code)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventSnapshotCreated, ev.Type)
		assert.Equal(t, "alice", ev.Actor)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

func TestNewServer_MissingDeps(t *testing.T) {
	_, err := NewServer(Config{}, Deps{})
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: badRequest("bad"), status: http.StatusBadRequest},
		{err: network.ErrInvalidConfiguration, status: http.StatusBadRequest},
		{err: inventory.ErrMachineNotFound, status: http.StatusNotFound},
		{err: security.ErrInvalidToken, status: http.StatusUnauthorized},
		{err: security.ErrForbidden, status: http.StatusForbidden},
		{err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}
