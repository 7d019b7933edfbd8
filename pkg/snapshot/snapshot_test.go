package snapshot

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/netpanel/pkg/collection"
	"github.com/cuemby/netpanel/pkg/events"
	"github.com/cuemby/netpanel/pkg/storage"
	"github.com/cuemby/netpanel/pkg/types"
)

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Publish(ev *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	rec := &recorder{}
	return NewService(store, rec), rec
}

func TestService_Lifecycle(t *testing.T) {
	svc, rec := newService(t)
	ctx := events.WithActor(context.Background(), "alice")

	created, err := svc.Create(ctx, CreateRequest{
		Name:     "Test-1",
		Viewport: &types.Viewport{X: 0, Y: 0, Zoom: 1},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotNil(t, created.Nodes, "nodes must serialize as []")

	got, err := svc.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test-1", got.Name)
	assert.Equal(t, &types.Viewport{X: 0, Y: 0, Zoom: 1}, got.Viewport)

	renamed, err := svc.Rename(ctx, created.ID, "Test-2")
	require.NoError(t, err)
	assert.Equal(t, "Test-2", renamed.Name)

	deleted, err := svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)

	_, err = svc.Get(created.ID)
	assert.ErrorIs(t, err, collection.ErrNotFound)

	assert.Equal(t, []events.EventType{
		events.EventSnapshotCreated,
		events.EventSnapshotRenamed,
		events.EventSnapshotDeleted,
	}, rec.kinds())
	assert.Equal(t, "alice", rec.events[0].Actor)
	assert.Equal(t, created.ID, rec.events[0].Metadata["snapshot_id"])
}

func TestService_PayloadPassthrough(t *testing.T) {
	svc, _ := newService(t)

	nodes := []json.RawMessage{
		json.RawMessage(`{"id":"vm-1","type":"machine","position":{"x":12.5,"y":-3},"data":{"label":"web"}}`),
		json.RawMessage(`{"id":"net-1","type":"intnet","data":{"anything":[1,2,{"deep":true}]}}`),
	}
	created, err := svc.Create(context.Background(), CreateRequest{
		Name:  "Lab1",
		Nodes: nodes,
		Edges: []json.RawMessage{json.RawMessage(`{"id":"e1","source":"vm-1","target":"net-1"}`)},
		Intnets: types.IntnetConfiguration{
			"net-1": {ID: "net-1", Machines: []string{"vm-1"}},
		},
	})
	require.NoError(t, err)

	got, err := svc.Get(created.ID)
	require.NoError(t, err)
	require.Len(t, got.Nodes, 2)
	for i := range nodes {
		assert.JSONEq(t, string(nodes[i]), string(got.Nodes[i]))
	}
	require.Len(t, got.Edges, 1)
	assert.Equal(t, []string{"vm-1"}, got.Intnets["net-1"].Machines)
}

func TestService_DeleteProtected(t *testing.T) {
	svc, rec := newService(t)
	no := false

	created, err := svc.Create(context.Background(), CreateRequest{Name: "Baseline", Deletable: &no})
	require.NoError(t, err)

	_, err = svc.Delete(context.Background(), created.ID)
	assert.ErrorIs(t, err, collection.ErrProtected)
	assert.Len(t, svc.List(), 1)
	assert.Equal(t, []events.EventType{events.EventSnapshotCreated}, rec.kinds())
}

func TestService_CreateErrorsPublishNothing(t *testing.T) {
	svc, rec := newService(t)

	_, err := svc.Create(context.Background(), CreateRequest{Name: "Lab1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{name: "duplicate", req: CreateRequest{Name: "Lab1"}, wantErr: collection.ErrConflict},
		{name: "invalid", req: CreateRequest{Name: "1x"}, wantErr: collection.ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Len(t, rec.kinds(), 1)
}

func TestNewService_NilPublisher(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	svc := NewService(store, nil)
	_, err = svc.Create(context.Background(), CreateRequest{Name: "Lab1"})
	assert.NoError(t, err)
}
