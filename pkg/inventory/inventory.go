package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cuemby/netpanel/pkg/types"
)

// ErrMachineNotFound is returned when a machine UUID is not in the inventory
var ErrMachineNotFound = errors.New("machine not found")

// Inventory reports the managed virtual machines
type Inventory interface {
	// Machines returns connection data keyed by machine UUID
	Machines(ctx context.Context) (map[string]*types.MachineNetworkData, error)
	// States returns runtime state keyed by machine UUID
	States(ctx context.Context) (map[string]*types.MachineState, error)
	// IntnetAssignments returns the current intnet membership
	IntnetAssignments(ctx context.Context) (types.IntnetConfiguration, error)
}

// Machine looks up the connection data of one machine
func Machine(ctx context.Context, inv Inventory, uuid string) (*types.MachineNetworkData, error) {
	machines, err := inv.Machines(ctx)
	if err != nil {
		return nil, err
	}
	m, ok := machines[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: machine of uuid=%s not found", ErrMachineNotFound, uuid)
	}
	return m, nil
}

// State looks up the runtime state of one machine
func State(ctx context.Context, inv Inventory, uuid string) (*types.MachineState, error) {
	states, err := inv.States(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := states[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: machine of uuid=%s not found", ErrMachineNotFound, uuid)
	}
	return s, nil
}

// groupIntnets builds an IntnetConfiguration from a machine → intnets map.
// Machine lists are sorted so responses are stable.
func groupIntnets(membership map[string][]string) types.IntnetConfiguration {
	cfg := types.IntnetConfiguration{}
	for machine, intnets := range membership {
		for _, id := range intnets {
			if id == "" {
				continue
			}
			in, ok := cfg[id]
			if !ok {
				in = &types.Intnet{ID: id, Machines: []string{}}
				cfg[id] = in
			}
			in.Machines = append(in.Machines, machine)
		}
	}
	for _, in := range cfg {
		sort.Strings(in.Machines)
	}
	return cfg
}
