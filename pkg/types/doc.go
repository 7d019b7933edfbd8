/*
Package types defines the data records exchanged between netpanel's storage,
services and HTTP API.

All types are flat JSON shapes. Editor payloads (flow nodes, edges, preset
formulas) are kept as json.RawMessage and passed through unmodified; the
backend never interprets them.

# Core Types

Editor state:
  - PanelLayout: persisted nodes, edges and viewport of the open editor
  - PanelState: PanelLayout plus intnet membership computed from the inventory
  - Viewport: camera position and zoom

Collections:
  - Snapshot: named copy of a layout, optionally protected from deletion
  - Preset: named set of editor formulas, provisioned out-of-band

Snapshot and Preset implement the collection.Record interface through
RecordID/SetRecordID/RecordName/SetRecordName.

Networking:
  - Intnet: internal network ID and its member machine IDs
  - IntnetConfiguration: intnet ID → Intnet
  - ApplyReport: per-machine outcome of pushing an IntnetConfiguration

Inventory:
  - MachineNetworkData: how a VM is reached (port, proxy domain)
  - MachineState: runtime state (active, cpu, memory)

Identifiers are strings throughout: machine UUIDs, intnet keys and record
UUIDs generated by the collection repository.
*/
package types
