package snapshot

import (
	"context"
	"encoding/json"

	"github.com/cuemby/netpanel/pkg/collection"
	"github.com/cuemby/netpanel/pkg/events"
	"github.com/cuemby/netpanel/pkg/storage"
	"github.com/cuemby/netpanel/pkg/types"
)

const entity = "snapshot"

// CreateRequest is the body accepted when saving a snapshot
type CreateRequest struct {
	Name      string                    `json:"name"`
	Deletable *bool                     `json:"deletable,omitempty"`
	Nodes     []json.RawMessage         `json:"nodes"`
	Edges     []json.RawMessage         `json:"edges,omitempty"`
	Viewport  *types.Viewport           `json:"viewport,omitempty"`
	Intnets   types.IntnetConfiguration `json:"intnets,omitempty"`
}

// Service manages the snapshot collection
type Service struct {
	repo   *collection.Repository[*types.Snapshot]
	events events.Publisher
}

// NewService creates a snapshot service storing its collection in store
func NewService(store storage.DocumentStore, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	repo := collection.New[*types.Snapshot](store, storage.KeySnapshots, entity,
		collection.WithDeleteGuard[*types.Snapshot](guardDeletable))
	return &Service{repo: repo, events: publisher}
}

func guardDeletable(s *types.Snapshot) error {
	if !s.IsDeletable() {
		return collection.Protected(entity, s.ID)
	}
	return nil
}

// List returns every snapshot in the order they were saved
func (s *Service) List() []*types.Snapshot {
	return s.repo.List()
}

// Get returns one snapshot
func (s *Service) Get(id string) (*types.Snapshot, error) {
	return s.repo.Get(id)
}

// Create saves a new snapshot under a fresh id
func (s *Service) Create(ctx context.Context, req CreateRequest) (*types.Snapshot, error) {
	snap := &types.Snapshot{
		Name:      req.Name,
		Deletable: req.Deletable,
		Nodes:     req.Nodes,
		Edges:     req.Edges,
		Viewport:  req.Viewport,
		Intnets:   req.Intnets,
	}
	if snap.Nodes == nil {
		snap.Nodes = []json.RawMessage{}
	}

	created, err := s.repo.Create(snap)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventSnapshotCreated, "Snapshot created", created)
	return created, nil
}

// Rename changes a snapshot's name
func (s *Service) Rename(ctx context.Context, id, name string) (*types.Snapshot, error) {
	renamed, err := s.repo.Rename(id, name)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventSnapshotRenamed, "Snapshot renamed", renamed)
	return renamed, nil
}

// Delete removes a snapshot and returns it. Snapshots saved with
// deletable=false are refused with collection.ErrProtected.
func (s *Service) Delete(ctx context.Context, id string) (*types.Snapshot, error) {
	deleted, err := s.repo.Delete(id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventSnapshotDeleted, "Snapshot deleted", deleted)
	return deleted, nil
}

func (s *Service) publish(ctx context.Context, typ events.EventType, msg string, snap *types.Snapshot) {
	s.events.Publish(&events.Event{
		Type:    typ,
		Actor:   events.ActorFromContext(ctx),
		Message: msg,
		Metadata: map[string]string{
			"snapshot_id":   snap.ID,
			"snapshot_name": snap.Name,
		},
	})
}
