package preset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/cuemby/netpanel/pkg/collection"
	"github.com/cuemby/netpanel/pkg/events"
	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/metrics"
	"github.com/cuemby/netpanel/pkg/storage"
	"github.com/cuemby/netpanel/pkg/types"
)

const entity = "preset"

// Service serves the read-only preset collection. When a watch path is
// configured the collection is cached in memory and the cache is dropped
// whenever the backing file changes.
type Service struct {
	repo      *collection.Repository[*types.Preset]
	events    events.Publisher
	watchPath string
	logger    zerolog.Logger

	mu     sync.RWMutex
	cache  []*types.Preset
	loaded bool
}

// Option configures a Service
type Option func(*Service)

// WithWatchPath enables caching, invalidated by changes to path
func WithWatchPath(path string) Option {
	return func(s *Service) {
		s.watchPath = path
	}
}

// NewService creates a preset service storing its collection in store
func NewService(store storage.DocumentStore, publisher events.Publisher, opts ...Option) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	s := &Service{
		repo:   collection.New[*types.Preset](store, storage.KeyPresets, entity),
		events: publisher,
		logger: log.WithComponent("preset"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every preset
func (s *Service) List() []*types.Preset {
	if s.watchPath == "" {
		return s.repo.List()
	}
	return append([]*types.Preset{}, s.cached()...)
}

// Get returns one preset
func (s *Service) Get(id string) (*types.Preset, error) {
	if s.watchPath == "" {
		return s.repo.Get(id)
	}
	for _, p := range s.cached() {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, collection.NotFound(entity, id)
}

// Import replaces the whole preset collection. Entries without an id get
// one; names must be valid and unique.
func (s *Service) Import(ctx context.Context, presets []*types.Preset) ([]*types.Preset, error) {
	out, err := s.repo.ReplaceAll(presets)
	if err != nil {
		return nil, err
	}
	s.Invalidate()

	s.events.Publish(&events.Event{
		Type:     events.EventPresetsImported,
		Actor:    events.ActorFromContext(ctx),
		Message:  "Presets imported",
		Metadata: map[string]string{"count": strconv.Itoa(len(out))},
	})
	return out, nil
}

// Invalidate drops the cache; the next read reloads from the store
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.loaded = false
}

func (s *Service) cached() []*types.Preset {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.cache
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.cache = s.repo.List()
		s.loaded = true
		metrics.PresetCacheReloads.Inc()
	}
	return s.cache
}

// Watch invalidates the cache whenever the preset file is created, written,
// replaced or removed. It blocks until ctx is cancelled.
func (s *Service) Watch(ctx context.Context) error {
	if s.watchPath == "" {
		<-ctx.Done()
		return nil
	}

	dir := filepath.Dir(s.watchPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic replaces swap the file's inode
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.logger.Info().Str("path", s.watchPath).Msg("Watching preset file")

	target := filepath.Clean(s.watchPath)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				s.Invalidate()
				s.logger.Debug().Str("op", ev.Op.String()).Msg("Preset file changed, cache invalidated")
				s.events.Publish(&events.Event{
					Type:    events.EventPresetsReloaded,
					Message: "Preset file changed",
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("Preset watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}

// ParseImport decodes an import file: either a JSON array of presets or an
// object with a "presets" array
func ParseImport(data []byte) ([]*types.Preset, error) {
	data = bytes.TrimSpace(data)

	var presets []*types.Preset
	if bytes.HasPrefix(data, []byte("[")) {
		if err := json.Unmarshal(data, &presets); err != nil {
			return nil, fmt.Errorf("failed to parse presets: %w", err)
		}
	} else {
		var doc struct {
			Presets []*types.Preset `json:"presets"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse presets: %w", err)
		}
		presets = doc.Presets
	}

	for i, p := range presets {
		if p == nil {
			return nil, fmt.Errorf("preset %d is null", i)
		}
	}
	return presets, nil
}
