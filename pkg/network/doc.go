/*
Package network implements the live editor configuration.

The live configuration is the layout the editor currently shows (flow nodes,
edges and viewport) plus the intnet membership of every managed machine.
Only the layout is persisted; intnets are read from the VM inventory on every
request so the editor always reflects the machines' real attachment.

	GET  /network/configuration           → Service.Current
	PUT  /network/configuration/panelstate → Service.SaveLayout
	PUT  /network/configuration/intnets    → Service.ApplyIntnets

SaveLayout overwrites the layout document wholesale. There is no merge and no
version check, so concurrent editors follow last-writer-wins.

# Applying Intnets

ApplyIntnets validates the mapping and hands it to an Applier, which is
responsible for making the machines' effective network attachment match it.
The default LogApplier only records the request. Per-machine failures are
returned in an ApplyReport rather than as an error so the API can answer
207 Multi-Status while still reporting which machines were configured.
*/
package network
