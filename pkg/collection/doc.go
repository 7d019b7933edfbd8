/*
Package collection implements a generic repository of named records kept in
a single JSON array document.

A Repository owns one document and one mutex. Create, Rename, Delete and
ReplaceAll hold the mutex for the full read-validate-write sequence, so two
concurrent creates can never both pass the uniqueness check. List and Get
read the document without locking and rely on the store replacing documents
atomically.

Records are kept in insertion order. Ids are UUIDv4 strings assigned on
create and never reassigned. Names must match ^[A-Za-z][A-Za-z0-9_\- ]{2,15}$
and be unique (case-sensitive) at the moment of create or rename; existing
names are never revalidated.

Failures wrap one of ErrNotFound, ErrInvalidName, ErrConflict or
ErrProtected in an *Error whose message names the entity, for example
"snapshot of id=42 not found". Storage failures are returned as-is.
*/
package collection
