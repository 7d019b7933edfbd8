package metrics

import (
	"context"
	"time"

	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/types"
)

// MachineSource is the slice of the VM inventory the collector polls
type MachineSource interface {
	States(ctx context.Context) (map[string]*types.MachineState, error)
	IntnetAssignments(ctx context.Context) (types.IntnetConfiguration, error)
}

// Collector periodically samples the VM inventory into gauges
type Collector struct {
	source   MachineSource
	interval time.Duration
}

// NewCollector creates a new inventory metrics collector
func NewCollector(source MachineSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
	}
}

// Run collects until ctx is cancelled
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Collect immediately on start
	c.collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Collector) collect(ctx context.Context) {
	c.collectMachineMetrics(ctx)
	c.collectIntnetMetrics(ctx)
}

func (c *Collector) collectMachineMetrics(ctx context.Context) {
	states, err := c.source.States(ctx)
	if err != nil {
		logger := log.WithComponent("metrics")
		logger.Debug().Err(err).Msg("Failed to sample machine states")
		UpdateComponent("inventory", false, err.Error())
		return
	}
	UpdateComponent("inventory", true, "")

	counts := map[string]int{"active": 0, "loading": 0, "inactive": 0}
	for _, st := range states {
		switch {
		case st.Loading:
			counts["loading"]++
		case st.Active:
			counts["active"]++
		default:
			counts["inactive"]++
		}
	}

	for state, count := range counts {
		MachinesTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectIntnetMetrics(ctx context.Context) {
	intnets, err := c.source.IntnetAssignments(ctx)
	if err != nil {
		return
	}
	IntnetsTotal.Set(float64(len(intnets)))
}
