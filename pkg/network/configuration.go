package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cuemby/netpanel/pkg/events"
	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/metrics"
	"github.com/cuemby/netpanel/pkg/storage"
	"github.com/cuemby/netpanel/pkg/types"
)

// ErrInvalidConfiguration is returned for intnet mappings that cannot be applied
var ErrInvalidConfiguration = errors.New("invalid intnet configuration")

// IntnetSource reports which machines are currently attached to which intnet
type IntnetSource interface {
	IntnetAssignments(ctx context.Context) (types.IntnetConfiguration, error)
}

// Service manages the live editor configuration: the persisted panel layout
// and the intnet membership of the managed machines
type Service struct {
	store   storage.DocumentStore
	source  IntnetSource
	applier Applier
	events  events.Publisher
	logger  zerolog.Logger
}

// NewService creates the live configuration service. A nil applier falls
// back to LogApplier.
func NewService(store storage.DocumentStore, source IntnetSource, applier Applier, publisher events.Publisher) *Service {
	if applier == nil {
		applier = NewLogApplier()
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{
		store:   store,
		source:  source,
		applier: applier,
		events:  publisher,
		logger:  log.WithComponent("network"),
	}
}

// Current returns the persisted layout overlaid with intnet assignments
// freshly read from the inventory
func (s *Service) Current(ctx context.Context) (*types.PanelState, error) {
	state := &types.PanelState{PanelLayout: s.layout()}

	intnets, err := s.source.IntnetAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read intnet assignments: %w", err)
	}
	if intnets == nil {
		intnets = types.IntnetConfiguration{}
	}
	state.Intnets = intnets
	return state, nil
}

func (s *Service) layout() types.PanelLayout {
	var layout types.PanelLayout
	if err := json.Unmarshal(s.store.Read(storage.KeyLayout), &layout); err != nil {
		s.logger.Warn().Err(err).Msg("Persisted layout is not an object, using an empty layout")
		layout = types.PanelLayout{}
	}
	layout.Normalize()
	if layout.Viewport == nil {
		layout.Viewport = types.DefaultViewport()
	}
	return layout
}

// SaveLayout replaces the persisted layout. Concurrent saves are not merged;
// the last write wins.
func (s *Service) SaveLayout(ctx context.Context, layout types.PanelLayout) error {
	layout.Normalize()
	if err := s.store.Write(storage.KeyLayout, layout); err != nil {
		return err
	}

	s.events.Publish(&events.Event{
		Type:     events.EventLayoutSaved,
		Actor:    events.ActorFromContext(ctx),
		Message:  "Panel layout saved",
		Metadata: map[string]string{"nodes": strconv.Itoa(len(layout.Nodes))},
	})
	return nil
}

// ApplyIntnets pushes an intnet to machine mapping to the managed machines.
// A report with failures is not an error; err is reserved for configurations
// that were rejected or could not be attempted at all.
func (s *Service) ApplyIntnets(ctx context.Context, cfg types.IntnetConfiguration) (*types.ApplyReport, error) {
	if err := normalizeConfiguration(cfg); err != nil {
		return nil, err
	}

	report, err := s.applier.Apply(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to apply intnet configuration: %w", err)
	}
	if report == nil {
		report = &types.ApplyReport{Applied: cfg.MachineIDs()}
	}

	if n := len(report.Failures); n > 0 {
		metrics.IntnetApplyFailures.Add(float64(n))
		s.logger.Warn().Int("failures", n).Msg("Intnet configuration partially applied")
	}

	s.events.Publish(&events.Event{
		Type:    events.EventIntnetsApplied,
		Actor:   events.ActorFromContext(ctx),
		Message: "Intnet configuration applied",
		Metadata: map[string]string{
			"intnets":  strconv.Itoa(len(cfg)),
			"applied":  strconv.Itoa(len(report.Applied)),
			"failures": strconv.Itoa(len(report.Failures)),
		},
	})
	return report, nil
}

// normalizeConfiguration fills missing intnet ids from their keys and
// rejects entries that contradict them
func normalizeConfiguration(cfg types.IntnetConfiguration) error {
	for key, in := range cfg {
		if key == "" {
			return fmt.Errorf("%w: empty intnet id", ErrInvalidConfiguration)
		}
		if in == nil {
			return fmt.Errorf("%w: intnet %s has no body", ErrInvalidConfiguration, key)
		}
		if in.ID == "" {
			in.ID = key
		}
		if in.ID != key {
			return fmt.Errorf("%w: intnet key %s does not match id %s", ErrInvalidConfiguration, key, in.ID)
		}
		if in.Machines == nil {
			in.Machines = []string{}
		}
	}
	return nil
}
