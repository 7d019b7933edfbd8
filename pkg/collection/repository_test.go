package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/netpanel/pkg/storage"
	"github.com/cuemby/netpanel/pkg/types"
)

// countingStore records how many writes reach the underlying store
type countingStore struct {
	storage.DocumentStore
	writes atomic.Int32
	fail   error
}

func (s *countingStore) Write(key string, value any) error {
	if s.fail != nil {
		return s.fail
	}
	s.writes.Add(1)
	return s.DocumentStore.Write(key, value)
}

func newTestRepo(t *testing.T, opts ...Option[*types.Snapshot]) (*Repository[*types.Snapshot], *countingStore) {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	store := &countingStore{DocumentStore: fs}
	return New[*types.Snapshot](store, storage.KeySnapshots, "snapshot", opts...), store
}

func snap(name string) *types.Snapshot {
	return &types.Snapshot{
		Name:     name,
		Nodes:    []json.RawMessage{json.RawMessage(`{"id":"n1","position":{"x":1,"y":2}}`)},
		Viewport: &types.Viewport{X: 0, Y: 0, Zoom: 1},
	}
}

func names(records []*types.Snapshot) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out
}

func TestRepository_ListEmpty(t *testing.T) {
	repo, _ := newTestRepo(t)
	list := repo.List()
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestRepository_ListNonListDocument(t *testing.T) {
	repo, store := newTestRepo(t)
	require.NoError(t, store.DocumentStore.Write(storage.KeySnapshots, map[string]string{"not": "a list"}))

	assert.Empty(t, repo.List())

	_, err := repo.Get("anything")
	assert.ErrorIs(t, err, ErrNotFound)

	// writes replace the non-list document with a list
	created, err := repo.Create(snap("Lab1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Lab1"}, names(repo.List()))
	assert.NotEmpty(t, created.ID)
}

func TestRepository_KeepsUndecodableEntries(t *testing.T) {
	repo, store := newTestRepo(t)
	legacy := `{"id":7,"name":"Legacy"}`
	require.NoError(t, store.DocumentStore.Write(storage.KeySnapshots, []json.RawMessage{
		json.RawMessage(`{"id":"a1","name":"Good1"}`),
		json.RawMessage(legacy),
	}))

	assert.Equal(t, []string{"Good1"}, names(repo.List()))

	created, err := repo.Create(snap("New1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Good1", "New1"}, names(repo.List()))

	_, err = repo.Rename("a1", "Good2")
	require.NoError(t, err)
	_, err = repo.Delete(created.ID)
	require.NoError(t, err)

	var elems []json.RawMessage
	require.NoError(t, json.Unmarshal(store.Read(storage.KeySnapshots), &elems))
	require.Len(t, elems, 2)
	assert.JSONEq(t, legacy, string(elems[1]), "unreadable entries are written back untouched")

	got, err := repo.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, "Good2", got.Name)
}

func TestRepository_CreateValidNames(t *testing.T) {
	valid := []string{
		"Lab",
		"Lab1",
		"Test-1",
		"my_snapshot",
		"A b c",
		"Abcdefghijklmnop", // 16 chars
	}

	repo, _ := newTestRepo(t)
	seen := make(map[string]bool)

	for _, name := range valid {
		t.Run(name, func(t *testing.T) {
			rec, err := repo.Create(snap(name))
			require.NoError(t, err)
			assert.Equal(t, name, rec.Name)
			assert.NotEmpty(t, rec.ID)
			assert.False(t, seen[rec.ID], "id reused: %s", rec.ID)
			seen[rec.ID] = true
		})
	}

	assert.Equal(t, valid, names(repo.List()))
}

func TestRepository_CreateInvalidName(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "leading digit", in: "1Lab"},
		{name: "two characters", in: "ab"},
		{name: "bang", in: "Lab!"},
		{name: "seventeen characters", in: "Abcdefghijklmnopq"},
		{name: "leading space", in: " Lab"},
		{name: "leading dash", in: "-Lab"},
		{name: "non ascii", in: "Réseau"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, store := newTestRepo(t)

			_, err := repo.Create(snap(tt.in))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidName)
			assert.Equal(t, int32(0), store.writes.Load(), "invalid create must not write")
		})
	}
}

func TestRepository_CreateConflict(t *testing.T) {
	repo, store := newTestRepo(t)

	first, err := repo.Create(snap("Lab1"))
	require.NoError(t, err)
	before := repo.List()
	writes := store.writes.Load()

	_, err = repo.Create(snap("Lab1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), `"Lab1"`)

	after := repo.List()
	assert.Equal(t, before, after)
	assert.Len(t, after, 1)
	assert.Equal(t, first.ID, after[0].ID)
	assert.Equal(t, writes, store.writes.Load())
}

func TestRepository_NamesAreCaseSensitive(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Create(snap("Lab1"))
	require.NoError(t, err)
	_, err = repo.Create(snap("lab1"))
	assert.NoError(t, err)
}

func TestRepository_CreateThenGet(t *testing.T) {
	repo, _ := newTestRepo(t)

	created, err := repo.Create(snap("Lab1"))
	require.NoError(t, err)

	got, err := repo.Get(created.ID)
	require.NoError(t, err)

	want, err := json.Marshal(created)
	require.NoError(t, err)
	have, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(have))
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Get("0b6e1c5e-0000-4000-8000-000000000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "snapshot of id=0b6e1c5e-0000-4000-8000-000000000000 not found", err.Error())
}

func TestRepository_Rename(t *testing.T) {
	repo, store := newTestRepo(t)

	a, err := repo.Create(snap("Alpha"))
	require.NoError(t, err)
	b, err := repo.Create(snap("Bravo"))
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		renamed, err := repo.Rename(a.ID, "Charlie")
		require.NoError(t, err)
		assert.Equal(t, "Charlie", renamed.Name)
		assert.Equal(t, a.ID, renamed.ID)
		assert.Equal(t, []string{"Charlie", "Bravo"}, names(repo.List()))
	})

	t.Run("collision with other record", func(t *testing.T) {
		_, err := repo.Rename(a.ID, "Bravo")
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, []string{"Charlie", "Bravo"}, names(repo.List()))
	})

	t.Run("own name is a no-op", func(t *testing.T) {
		writes := store.writes.Load()
		renamed, err := repo.Rename(b.ID, "Bravo")
		require.NoError(t, err)
		assert.Equal(t, "Bravo", renamed.Name)
		assert.Equal(t, writes, store.writes.Load())
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.Rename("missing", "Delta")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := repo.Rename(b.ID, "x")
		assert.ErrorIs(t, err, ErrInvalidName)
	})
}

func TestRepository_Delete(t *testing.T) {
	repo, _ := newTestRepo(t)

	var ids []string
	for _, n := range []string{"One", "Two", "Three", "Four"} {
		rec, err := repo.Create(snap(n))
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	deleted, err := repo.Delete(ids[1])
	require.NoError(t, err)
	assert.Equal(t, "Two", deleted.Name)

	_, err = repo.Get(ids[1])
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"One", "Three", "Four"}, names(repo.List()))

	_, err = repo.Delete(ids[1])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_DeleteGuard(t *testing.T) {
	guard := func(s *types.Snapshot) error {
		if !s.IsDeletable() {
			return Protected("snapshot", s.ID)
		}
		return nil
	}
	repo, _ := newTestRepo(t, WithDeleteGuard[*types.Snapshot](guard))

	locked := snap("Locked")
	no := false
	locked.Deletable = &no
	rec, err := repo.Create(locked)
	require.NoError(t, err)

	_, err = repo.Delete(rec.ID)
	assert.ErrorIs(t, err, ErrProtected)
	assert.Len(t, repo.List(), 1)
}

func TestRepository_WriteFailure(t *testing.T) {
	repo, store := newTestRepo(t)
	store.fail = errors.New("disk full")

	_, err := repo.Create(snap("Lab1"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, repo.List())
}

func TestRepository_ConcurrentCreateDistinctNames(t *testing.T) {
	repo, _ := newTestRepo(t)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(snap(fmt.Sprintf("Snap-%02d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	list := repo.List()
	assert.Len(t, list, n)

	ids := make(map[string]bool)
	for _, rec := range list {
		assert.False(t, ids[rec.ID], "duplicate id %s", rec.ID)
		ids[rec.ID] = true
	}
}

func TestRepository_ConcurrentCreateSameName(t *testing.T) {
	repo, _ := newTestRepo(t)

	const n = 16
	var wg sync.WaitGroup
	var ok, conflict atomic.Int32

	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := repo.Create(snap("Shared"))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrConflict):
				conflict.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), conflict.Load())
	assert.Len(t, repo.List(), 1)
}

func TestRepository_ReplaceAll(t *testing.T) {
	t.Run("assigns missing ids", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		_, err := repo.Create(snap("Old"))
		require.NoError(t, err)

		kept := snap("Kept")
		kept.ID = "fixed-id"
		out, err := repo.ReplaceAll([]*types.Snapshot{kept, snap("Fresh")})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "fixed-id", out[0].ID)
		assert.NotEmpty(t, out[1].ID)
		assert.Equal(t, []string{"Kept", "Fresh"}, names(repo.List()))
	})

	tests := []struct {
		name    string
		records func() []*types.Snapshot
		wantErr error
	}{
		{
			name:    "duplicate names",
			records: func() []*types.Snapshot { return []*types.Snapshot{snap("Grid"), snap("Grid")} },
			wantErr: ErrConflict,
		},
		{
			name: "duplicate ids",
			records: func() []*types.Snapshot {
				a, b := snap("Grid"), snap("Ring")
				a.ID, b.ID = "same", "same"
				return []*types.Snapshot{a, b}
			},
			wantErr: ErrConflict,
		},
		{
			name:    "invalid name",
			records: func() []*types.Snapshot { return []*types.Snapshot{snap("9lives")} },
			wantErr: ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, store := newTestRepo(t)
			_, err := repo.ReplaceAll(tt.records())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int32(0), store.writes.Load())
		})
	}
}

func TestValidateName_Message(t *testing.T) {
	err := ValidateName("preset", "!!")
	require.Error(t, err)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ErrInvalidName, cerr.Kind)
	assert.Contains(t, cerr.Message, "preset name")
}
