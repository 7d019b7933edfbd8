package network

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/types"
)

// Applier makes the effective network configuration of the managed machines
// match an intnet mapping. Implementations report per-machine failures in
// the returned report and reserve the error for failures that prevented any
// attempt.
type Applier interface {
	Apply(ctx context.Context, cfg types.IntnetConfiguration) (*types.ApplyReport, error)
}

// ApplierFunc adapts a function to the Applier interface
type ApplierFunc func(ctx context.Context, cfg types.IntnetConfiguration) (*types.ApplyReport, error)

// Apply calls f
func (f ApplierFunc) Apply(ctx context.Context, cfg types.IntnetConfiguration) (*types.ApplyReport, error) {
	return f(ctx, cfg)
}

// LogApplier records the requested mapping in the log and reports every
// machine as configured. It is the default until a real push mechanism is
// plugged in.
type LogApplier struct {
	logger zerolog.Logger
}

// NewLogApplier creates a LogApplier
func NewLogApplier() *LogApplier {
	return &LogApplier{logger: log.WithComponent("applier")}
}

// Apply logs cfg and reports success for every machine in it
func (a *LogApplier) Apply(ctx context.Context, cfg types.IntnetConfiguration) (*types.ApplyReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(cfg))
	for id := range cfg {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if cfg[id] == nil {
			continue
		}
		a.logger.Info().
			Str("intnet", id).
			Strs("machines", cfg[id].Machines).
			Msg("Intnet configuration requested")
	}

	applied := cfg.MachineIDs()
	sort.Strings(applied)
	if applied == nil {
		applied = []string{}
	}
	return &types.ApplyReport{Applied: applied}, nil
}
