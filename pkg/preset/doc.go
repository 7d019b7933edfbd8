// Package preset serves the read-only preset collection.
//
// Presets are named sets of editor formulas (variables, custom functions,
// core functions). The backend stores and returns them verbatim and never
// evaluates them. They are provisioned out-of-band with
// "netpanel preset import", which replaces the whole collection; the HTTP API
// only lists and fetches them.
package preset
