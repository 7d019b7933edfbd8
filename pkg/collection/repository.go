package collection

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/metrics"
	"github.com/cuemby/netpanel/pkg/storage"
)

// Record is an entry of a collection document
type Record interface {
	RecordID() string
	SetRecordID(id string)
	RecordName() string
	SetRecordName(name string)
}

// DeleteGuard may refuse the removal of a record
type DeleteGuard[T Record] func(rec T) error

// Option configures a Repository
type Option[T Record] func(*Repository[T])

// WithDeleteGuard installs a guard consulted before every delete
func WithDeleteGuard[T Record](guard DeleteGuard[T]) Option[T] {
	return func(r *Repository[T]) {
		r.guard = guard
	}
}

// Repository manages an ordered list of records stored as one JSON array
// document. Mutations hold the repository mutex across the whole
// read-validate-write sequence; reads take no lock.
type Repository[T Record] struct {
	store  storage.DocumentStore
	key    string
	entity string
	guard  DeleteGuard[T]
	logger zerolog.Logger

	mu sync.Mutex
}

// New creates a repository over the document stored under key. entity names
// the record kind in errors and metrics, e.g. "snapshot".
func New[T Record](store storage.DocumentStore, key, entity string, opts ...Option[T]) *Repository[T] {
	r := &Repository[T]{
		store:  store,
		key:    key,
		entity: entity,
		logger: log.WithCollection(entity),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns all records in insertion order. A missing document or one
// that is not a list yields an empty slice.
func (r *Repository[T]) List() []T {
	return r.load().records()
}

// Get returns the record with the given id
func (r *Repository[T]) Get(id string) (T, error) {
	for _, rec := range r.load().records() {
		if rec.RecordID() == id {
			return rec, nil
		}
	}
	var zero T
	return zero, NotFound(r.entity, id)
}

// Create validates the record name, assigns a fresh id and appends it
func (r *Repository[T]) Create(rec T) (T, error) {
	var zero T
	if err := ValidateName(r.entity, rec.RecordName()); err != nil {
		r.observe("create", err)
		return zero, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()
	records := doc.records()
	if err := r.checkNameFree(records, rec.RecordName(), ""); err != nil {
		r.observe("create", err)
		return zero, err
	}

	rec.SetRecordID(newID(records))
	doc.entries = append(doc.entries, entry[T]{rec: rec})

	if err := r.save(doc); err != nil {
		r.observe("create", err)
		return zero, err
	}

	r.observe("create", nil)
	r.logger.Debug().Str("id", rec.RecordID()).Str("name", rec.RecordName()).Msg("Record created")
	return rec, nil
}

// Rename changes the name of an existing record. Renaming a record to its
// current name succeeds without writing.
func (r *Repository[T]) Rename(id, name string) (T, error) {
	var zero T
	if err := ValidateName(r.entity, name); err != nil {
		r.observe("rename", err)
		return zero, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()
	records := doc.records()
	idx := indexOf(records, id)
	if idx < 0 {
		err := NotFound(r.entity, id)
		r.observe("rename", err)
		return zero, err
	}

	rec := records[idx]
	if rec.RecordName() == name {
		r.observe("rename", nil)
		return rec, nil
	}

	if err := r.checkNameFree(records, name, id); err != nil {
		r.observe("rename", err)
		return zero, err
	}

	rec.SetRecordName(name)
	doc.entries[doc.indexOf(id)].rec = rec
	if err := r.save(doc); err != nil {
		r.observe("rename", err)
		return zero, err
	}

	r.observe("rename", nil)
	r.logger.Debug().Str("id", id).Str("name", name).Msg("Record renamed")
	return rec, nil
}

// Delete removes a record and returns it. Survivors keep their order.
func (r *Repository[T]) Delete(id string) (T, error) {
	var zero T

	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.load()
	idx := doc.indexOf(id)
	if idx < 0 {
		err := NotFound(r.entity, id)
		r.observe("delete", err)
		return zero, err
	}

	rec := doc.entries[idx].rec
	if r.guard != nil {
		if err := r.guard(rec); err != nil {
			r.observe("delete", err)
			return zero, err
		}
	}

	doc.entries = append(doc.entries[:idx:idx], doc.entries[idx+1:]...)

	if err := r.save(doc); err != nil {
		r.observe("delete", err)
		return zero, err
	}

	r.observe("delete", nil)
	r.logger.Debug().Str("id", id).Msg("Record deleted")
	return rec, nil
}

// ReplaceAll swaps the whole collection. Records without an id get a fresh
// one; names must be valid and unique and ids must not repeat.
func (r *Repository[T]) ReplaceAll(records []T) ([]T, error) {
	names := make(map[string]struct{}, len(records))
	ids := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if err := ValidateName(r.entity, rec.RecordName()); err != nil {
			r.observe("replace", err)
			return nil, err
		}
		if _, dup := names[rec.RecordName()]; dup {
			err := newError(ErrConflict, "%s name %q is used more than once", r.entity, rec.RecordName())
			r.observe("replace", err)
			return nil, err
		}
		names[rec.RecordName()] = struct{}{}

		if id := rec.RecordID(); id != "" {
			if _, dup := ids[id]; dup {
				err := newError(ErrConflict, "%s id %s is used more than once", r.entity, id)
				r.observe("replace", err)
				return nil, err
			}
			ids[id] = struct{}{}
		}
	}

	for _, rec := range records {
		if rec.RecordID() != "" {
			continue
		}
		id := uuid.NewString()
		for {
			if _, taken := ids[id]; !taken {
				break
			}
			id = uuid.NewString()
		}
		ids[id] = struct{}{}
		rec.SetRecordID(id)
	}

	out := append(make([]T, 0, len(records)), records...)
	doc := &document[T]{entries: make([]entry[T], 0, len(out))}
	for _, rec := range out {
		doc.entries = append(doc.entries, entry[T]{rec: rec})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.save(doc); err != nil {
		r.observe("replace", err)
		return nil, err
	}
	r.observe("replace", nil)
	r.logger.Info().Int("records", len(out)).Msg("Collection replaced")
	return out, nil
}

// entry is one element of a collection document. Elements that do not decode
// as a record keep their raw bytes so a later write puts them back unchanged.
type entry[T Record] struct {
	rec T
	raw json.RawMessage
}

type document[T Record] struct {
	entries []entry[T]
}

func (d *document[T]) records() []T {
	out := make([]T, 0, len(d.entries))
	for _, e := range d.entries {
		if e.raw == nil {
			out = append(out, e.rec)
		}
	}
	return out
}

func (d *document[T]) indexOf(id string) int {
	for i, e := range d.entries {
		if e.raw == nil && e.rec.RecordID() == id {
			return i
		}
	}
	return -1
}

func (r *Repository[T]) load() *document[T] {
	doc := &document[T]{}
	raw := r.store.Read(r.key)
	if !storage.IsList(raw) {
		return doc
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		r.logger.Warn().Err(err).Str("key", r.key).Msg("Collection document does not hold a list, treating as empty")
		return doc
	}

	doc.entries = make([]entry[T], 0, len(elems))
	for i, elem := range elems {
		var rec T
		if err := json.Unmarshal(elem, &rec); err != nil {
			r.logger.Warn().Err(err).Str("key", r.key).Int("index", i).Msg("Skipping collection entry that is not a record")
			doc.entries = append(doc.entries, entry[T]{raw: elem})
			continue
		}
		// null entries would panic on access
		if isNil(rec) {
			continue
		}
		doc.entries = append(doc.entries, entry[T]{rec: rec})
	}
	return doc
}

func (r *Repository[T]) save(doc *document[T]) error {
	elems := make([]json.RawMessage, 0, len(doc.entries))
	for _, e := range doc.entries {
		if e.raw != nil {
			elems = append(elems, e.raw)
			continue
		}
		data, err := json.Marshal(e.rec)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", r.entity, e.rec.RecordID(), err)
		}
		elems = append(elems, data)
	}

	if err := r.store.Write(r.key, elems); err != nil {
		r.logger.Error().Err(err).Str("key", r.key).Msg("Failed to persist collection")
		return err
	}
	metrics.CollectionRecords.WithLabelValues(r.entity).Set(float64(len(doc.records())))
	return nil
}

func (r *Repository[T]) checkNameFree(records []T, name, exceptID string) error {
	for _, rec := range records {
		if rec.RecordName() == name && rec.RecordID() != exceptID {
			return newError(ErrConflict, "%s with name %q already exists", r.entity, name)
		}
	}
	return nil
}

func (r *Repository[T]) observe(op string, err error) {
	metrics.CollectionOperations.WithLabelValues(r.entity, op, resultLabel(err)).Inc()
}

func indexOf[T Record](records []T, id string) int {
	for i, rec := range records {
		if rec.RecordID() == id {
			return i
		}
	}
	return -1
}

// newID returns a UUID not used by any record in the collection
func newID[T Record](records []T) string {
	for {
		id := uuid.NewString()
		if indexOf(records, id) < 0 {
			return id
		}
	}
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	return !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil())
}
