/*
Package storage provides JSON document persistence for netpanel.

A document is a single JSON value stored under a slash-separated key. The
editor backend keeps exactly three of them: the live panel layout, the
snapshot collection and the preset collection. Two backends implement the
DocumentStore interface and are selected with the storage.driver setting.

# Architecture

	┌──────────────────── DOCUMENT STORE ─────────────────────┐
	│                                                          │
	│  Read(key)  ──► raw JSON, "{}" when missing or corrupt   │
	│  Write(key) ──► indented JSON, full replacement          │
	│                                                          │
	│  ┌───────────────────────┐  ┌─────────────────────────┐  │
	│  │ FileStore             │  │ BoltStore               │  │
	│  │ <dataDir>/<key>       │  │ <dataDir>/netpanel.db   │  │
	│  │ temp file + rename    │  │ bucket "documents"      │  │
	│  └───────────────────────┘  └─────────────────────────┘  │
	└──────────────────────────────────────────────────────────┘

# Read Semantics

Read never returns an error. A document that does not exist, cannot be read,
or does not parse as JSON is returned as an empty object. Unreadable and
corrupt documents are logged at warn level; callers decide what an empty
object means for them (the collection package treats any non-array as an
empty collection).

# Write Semantics

Write marshals the value with two-space indentation so documents stay
human-diffable, then replaces the previous content entirely. FileStore writes
to a temporary file in the same directory, syncs it and renames it over the
target, so a concurrent reader observes either the old or the new document.
BoltStore gets the same guarantee from bbolt transactions.

Write errors (permissions, disk full, closed database) are returned wrapped
with the document key and are not retried.

# Usage

	store, err := storage.Open(storage.DriverFile, "/var/lib/netpanel")
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Write(storage.KeyLayout, layout); err != nil {
		return err
	}
	raw := store.Read(storage.KeyLayout)

# Concurrency

Both stores are safe for concurrent use. They do not serialize
read-modify-write sequences; that is the job of the collection repository
that owns a document.
*/
package storage
