package inventory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/netpanel/pkg/types"
)

// StaticInventory serves a fixed machine list loaded from a YAML file
type StaticInventory struct {
	mu       sync.RWMutex
	machines []machineEntry
}

// machineEntry is one machine in the inventory file
type machineEntry struct {
	types.MachineNetworkData `yaml:",inline"`
	Intnets                  []string    `yaml:"intnets"`
	State                    *stateEntry `yaml:"state"`
}

type stateEntry struct {
	Active            bool     `yaml:"active"`
	Loading           bool     `yaml:"loading"`
	ActiveConnections []string `yaml:"active_connections"`
	CPU               int      `yaml:"cpu"`
	RAMMax            int      `yaml:"ram_max"`
	RAMUsed           int      `yaml:"ram_used"`
}

type inventoryFile struct {
	Machines []machineEntry `yaml:"machines"`
}

// NewStaticInventory loads path. An empty path yields the demo inventory.
func NewStaticInventory(path string) (*StaticInventory, error) {
	if path == "" {
		return NewDemoInventory(), nil
	}
	inv := &StaticInventory{}
	if err := inv.Load(path); err != nil {
		return nil, err
	}
	return inv, nil
}

// ParseStatic builds an inventory from YAML content
func ParseStatic(data []byte) (*StaticInventory, error) {
	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}

	seen := make(map[string]bool, len(file.Machines))
	for i, m := range file.Machines {
		if m.UUID == "" {
			return nil, fmt.Errorf("inventory machine %d has no uuid", i)
		}
		if seen[m.UUID] {
			return nil, fmt.Errorf("inventory machine %s is listed twice", m.UUID)
		}
		seen[m.UUID] = true
	}
	return &StaticInventory{machines: file.Machines}, nil
}

// Load replaces the machine list with the content of path
func (s *StaticInventory) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read inventory: %w", err)
	}
	parsed, err := ParseStatic(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.machines = parsed.machines
	return nil
}

// Machines implements Inventory
func (s *StaticInventory) Machines(ctx context.Context) (map[string]*types.MachineNetworkData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*types.MachineNetworkData, len(s.machines))
	for _, m := range s.machines {
		data := m.MachineNetworkData
		out[m.UUID] = &data
	}
	return out, nil
}

// States implements Inventory. Machines without a state block are reported
// as inactive.
func (s *StaticInventory) States(ctx context.Context) (map[string]*types.MachineState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*types.MachineState, len(s.machines))
	for _, m := range s.machines {
		st := &types.MachineState{
			UUID:          m.UUID,
			Group:         m.Group,
			GroupMemberID: m.GroupMemberID,
		}
		if m.State != nil {
			st.Active = m.State.Active
			st.Loading = m.State.Loading
			st.ActiveConnections = m.State.ActiveConnections
			st.CPU = m.State.CPU
			st.RAMMax = m.State.RAMMax
			st.RAMUsed = m.State.RAMUsed
		}
		out[m.UUID] = st
	}
	return out, nil
}

// IntnetAssignments implements Inventory
func (s *StaticInventory) IntnetAssignments(ctx context.Context) (types.IntnetConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	membership := make(map[string][]string, len(s.machines))
	for _, m := range s.machines {
		membership[m.UUID] = m.Intnets
	}
	return groupIntnets(membership), nil
}

// NewDemoInventory returns a small desktop/server lab used when no inventory
// is configured
func NewDemoInventory() *StaticInventory {
	return &StaticInventory{machines: []machineEntry{
		{
			MachineNetworkData: types.MachineNetworkData{
				UUID: "b38350cf-105f-4ecd-8eb4-3d9370d39f0e", Group: "desktop", GroupMemberID: 1,
				Port: 1001, Domain: "desktop1.lab.internal",
			},
			Intnets: []string{"1"},
			State:   &stateEntry{Active: true, CPU: 42, RAMUsed: 3462, RAMMax: 4096},
		},
		{
			MachineNetworkData: types.MachineNetworkData{
				UUID: "280af110-b78c-4c7a-a554-d38bc0c428df", Group: "desktop", GroupMemberID: 2,
				Port: 1002, Domain: "desktop2.lab.internal",
			},
			Intnets: []string{"2"},
		},
		{
			MachineNetworkData: types.MachineNetworkData{
				UUID: "a923601a-fc61-44cb-b007-5df89b1966e2", Group: "server", GroupMemberID: 1,
				Port: 1501, Domain: "server1.lab.internal",
			},
			Intnets: []string{"1"},
		},
		{
			MachineNetworkData: types.MachineNetworkData{
				UUID: "67ac8bfd-2b97-4196-9572-5b519960bf3f", Group: "server", GroupMemberID: 2,
				Port: 1502, Domain: "server2.lab.internal",
			},
			Intnets: []string{"2"},
			State:   &stateEntry{Active: true, CPU: 97, RAMUsed: 1094, RAMMax: 4096},
		},
	}}
}
