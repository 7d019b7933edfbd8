// Package inventory reports the virtual machines behind the panel.
//
// Two backends implement Inventory: StaticInventory reads a YAML machine list
// (or serves a built-in demo lab), LibvirtInventory talks to a libvirt daemon
// over its unix socket and maps domains to machines and their attached
// networks to intnets.
package inventory
