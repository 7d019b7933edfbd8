package types

import (
	"encoding/json"
)

// Viewport is the editor camera position
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// DefaultViewport is what the editor falls back to when nothing was saved
func DefaultViewport() *Viewport {
	return &Viewport{X: 0, Y: 0, Zoom: 1}
}

// PanelLayout is the persisted part of the editor state.
// Nodes and edges are passed through untouched.
type PanelLayout struct {
	Nodes    []json.RawMessage `json:"nodes"`
	Edges    []json.RawMessage `json:"edges,omitempty"`
	Viewport *Viewport         `json:"viewport,omitempty"`
}

// Normalize replaces a missing node list with an empty one so the
// document always serializes "nodes": [].
func (l *PanelLayout) Normalize() {
	if l.Nodes == nil {
		l.Nodes = []json.RawMessage{}
	}
}

// Intnet is an internal network and the machines attached to it
type Intnet struct {
	ID       string   `json:"id"`
	Machines []string `json:"machines"`
}

// IntnetConfiguration maps intnet ID to its membership
type IntnetConfiguration map[string]*Intnet

// MachineIDs returns every machine referenced by the configuration, in
// no particular order and without duplicates.
func (c IntnetConfiguration) MachineIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, in := range c {
		if in == nil {
			continue
		}
		for _, m := range in.Machines {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			ids = append(ids, m)
		}
	}
	return ids
}

// PanelState is the live configuration returned to the editor: the saved
// layout plus intnet membership computed from the VM inventory.
type PanelState struct {
	PanelLayout
	Intnets IntnetConfiguration `json:"intnets"`
}

// Snapshot is a named copy of the editor layout
type Snapshot struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Deletable *bool               `json:"deletable,omitempty"`
	Nodes     []json.RawMessage   `json:"nodes"`
	Edges     []json.RawMessage   `json:"edges,omitempty"`
	Viewport  *Viewport           `json:"viewport,omitempty"`
	Intnets   IntnetConfiguration `json:"intnets,omitempty"`
}

func (s *Snapshot) RecordID() string       { return s.ID }
func (s *Snapshot) SetRecordID(id string)  { s.ID = id }
func (s *Snapshot) RecordName() string     { return s.Name }
func (s *Snapshot) SetRecordName(n string) { s.Name = n }

// IsDeletable reports whether the snapshot may be removed. Snapshots
// saved without the flag are deletable.
func (s *Snapshot) IsDeletable() bool {
	return s.Deletable == nil || *s.Deletable
}

// Preset is a named set of editor formulas. Data holds the variables,
// custom functions and core functions exactly as provisioned.
type Preset struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (p *Preset) RecordID() string       { return p.ID }
func (p *Preset) SetRecordID(id string)  { p.ID = id }
func (p *Preset) RecordName() string     { return p.Name }
func (p *Preset) SetRecordName(n string) { p.Name = n }

// MachineNetworkData describes how a VM is reached
type MachineNetworkData struct {
	UUID          string `json:"uuid" yaml:"uuid"`
	Group         string `json:"group,omitempty" yaml:"group"`
	GroupMemberID int    `json:"group_member_id,omitempty" yaml:"group_member_id"`
	Port          int    `json:"port,omitempty" yaml:"port"`
	Domain        string `json:"domain,omitempty" yaml:"domain"`
}

// MachineState is the runtime state of a VM
type MachineState struct {
	UUID              string   `json:"uuid" yaml:"uuid"`
	Group             string   `json:"group,omitempty" yaml:"group"`
	GroupMemberID     int      `json:"group_member_id,omitempty" yaml:"group_member_id"`
	Active            bool     `json:"active" yaml:"active"`
	Loading           bool     `json:"loading" yaml:"loading"`
	ActiveConnections []string `json:"active_connections,omitempty" yaml:"active_connections"`
	CPU               int      `json:"cpu" yaml:"cpu"`
	RAMMax            int      `json:"ram_max,omitempty" yaml:"ram_max"`
	RAMUsed           int      `json:"ram_used,omitempty" yaml:"ram_used"`
}

// ApplyReport is the outcome of pushing an intnet configuration to VMs.
// Failures maps machine ID to the reason it could not be configured.
type ApplyReport struct {
	Applied  []string          `json:"applied"`
	Failures map[string]string `json:"failures,omitempty"`
}

// OK reports whether every machine was configured
func (r *ApplyReport) OK() bool {
	return r == nil || len(r.Failures) == 0
}

// User is the public view of an authenticated principal
type User struct {
	UID      int    `json:"uid"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Token is the response of a successful login
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
