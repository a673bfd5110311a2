// Package docstore is a small transactional document store: JSON-shaped
// documents grouped into collections, point reads, field-path partial
// updates, optimistic read-modify-write transactions with automatic retry,
// and change triggers that fire with before/after snapshots after a write
// commits. Four interchangeable backends exist: in-memory, file-backed
// JSON, SQLite and Postgres.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

const maxTxAttempts = 25

type rawDoc struct {
	Collection string
	ID         string
	Data       map[string]any
	Version    int64
}

type readStamp struct {
	coll    string
	id      string
	version int64 // 0 means the document was read as missing
}

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

type writeOp struct {
	kind   opKind
	coll   string
	id     string
	data   map[string]any // opSet
	fields map[string]any // opUpdate, keyed by dotted field path
}

// applied records one write a backend committed, for event dispatch.
type applied struct {
	coll   string
	id     string
	before *Snapshot
	after  *Snapshot
}

// backend is the storage engine behind a Store. commit must atomically
// verify every readStamp against the current document versions (returning
// ErrConflict on any mismatch) and apply all writes, bumping versions.
type backend interface {
	get(ctx context.Context, coll, id string) (map[string]any, int64, error)
	list(ctx context.Context, coll string) ([]rawDoc, error)
	collections(ctx context.Context) ([]string, error)
	commit(ctx context.Context, reads []readStamp, writes []writeOp) ([]applied, error)
	close() error
}

// Store is the document store handle shared by every backend.
type Store struct {
	b backend
	d *dispatcher
}

func newStore(b backend) *Store {
	return &Store{b: b, d: newDispatcher()}
}

// Get reads a document. A missing document yields a snapshot whose
// Exists() is false, not an error.
func (s *Store) Get(ctx context.Context, coll, id string) (*Snapshot, error) {
	data, version, err := s.b.get(ctx, coll, id)
	if err != nil {
		return nil, err
	}
	return newSnapshot(coll, id, version, data), nil
}

// Collections returns the names of every non-empty collection, sorted.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	return s.b.collections(ctx)
}

// List returns snapshots of every document in a collection.
func (s *Store) List(ctx context.Context, coll string) ([]*Snapshot, error) {
	docs, err := s.b.list(ctx, coll)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, newSnapshot(d.Collection, d.ID, d.Version, d.Data))
	}
	return out, nil
}

// Set creates or replaces a document.
func (s *Store) Set(ctx context.Context, coll, id string, data map[string]any) error {
	return s.RunTransaction(ctx, func(tx *Tx) error {
		tx.Set(coll, id, data)
		return nil
	})
}

// Update applies field-path-scoped partial updates ("stats.gold": 12) to an
// existing document. Returns ErrNotFound if the document is missing.
func (s *Store) Update(ctx context.Context, coll, id string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(tx *Tx) error {
		tx.Update(coll, id, fields)
		return nil
	})
}

// Delete removes a document. Deleting a missing document is a no-op.
func (s *Store) Delete(ctx context.Context, coll, id string) error {
	return s.RunTransaction(ctx, func(tx *Tx) error {
		tx.Delete(coll, id)
		return nil
	})
}

// RunTransaction runs fn inside an optimistic transaction. Reads through
// tx.Get are stamped with the document version; the commit verifies every
// stamp and applies the buffered writes atomically. On a conflicting
// concurrent write fn is re-run against fresh data, up to maxTxAttempts
// times. fn must therefore be side-effect free outside the transaction.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx := &Tx{ctx: ctx, b: s.b}
		if err := fn(tx); err != nil {
			return err
		}
		events, err := s.b.commit(ctx, tx.reads, tx.writes)
		if err == nil {
			s.dispatchApplied(ctx, events)
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("transaction retries exhausted: %w", lastErr)
}

// OnWrite registers a trigger fired after any create/update/delete of a
// document matching pattern ("users/{userId}").
func (s *Store) OnWrite(pattern string, h TriggerHandler) {
	s.d.onWrite(pattern, false, h)
}

// OnUpdate registers a trigger fired only for updates of existing documents.
func (s *Store) OnUpdate(pattern string, h TriggerHandler) {
	s.d.onWrite(pattern, true, h)
}

// Watch streams change events for a single document (or a whole collection
// when id is empty) until cancel is called.
func (s *Store) Watch(coll, id string) (<-chan Event, func()) {
	return s.d.watch(coll, id)
}

func (s *Store) Close() error {
	return s.b.close()
}

func (s *Store) dispatchApplied(ctx context.Context, events []applied) {
	if len(events) == 0 {
		return
	}
	out := make([]Event, 0, len(events))
	for _, a := range events {
		kind := EventUpdate
		switch {
		case !a.before.Exists() && a.after.Exists():
			kind = EventCreate
		case a.before.Exists() && !a.after.Exists():
			kind = EventDelete
		case !a.before.Exists() && !a.after.Exists():
			continue
		}
		out = append(out, Event{
			Kind:       kind,
			Collection: a.coll,
			ID:         a.id,
			Before:     a.before,
			After:      a.after,
		})
	}
	s.d.dispatch(ctx, out)
}

// Tx buffers the reads and writes of one transaction attempt. Writes are
// not visible to subsequent tx.Get calls; the flows here read first and
// write once, matching the store's commit model.
type Tx struct {
	ctx    context.Context
	b      backend
	reads  []readStamp
	writes []writeOp
}

func (t *Tx) Get(coll, id string) (*Snapshot, error) {
	data, version, err := t.b.get(t.ctx, coll, id)
	if err != nil {
		return nil, err
	}
	t.reads = append(t.reads, readStamp{coll: coll, id: id, version: version})
	return newSnapshot(coll, id, version, data), nil
}

func (t *Tx) Set(coll, id string, data map[string]any) {
	t.writes = append(t.writes, writeOp{kind: opSet, coll: coll, id: id, data: deepCopyMap(data)})
}

func (t *Tx) Update(coll, id string, fields map[string]any) {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = deepCopyValue(v)
	}
	t.writes = append(t.writes, writeOp{kind: opUpdate, coll: coll, id: id, fields: copied})
}

func (t *Tx) Delete(coll, id string) {
	t.writes = append(t.writes, writeOp{kind: opDelete, coll: coll, id: id})
}

// applyWriteOp produces the post-write document body. Shared by every
// backend so update semantics stay identical across them.
func applyWriteOp(before map[string]any, op writeOp) (map[string]any, error) {
	switch op.kind {
	case opSet:
		return deepCopyMap(op.data), nil
	case opDelete:
		return nil, nil
	case opUpdate:
		if before == nil {
			return nil, fmt.Errorf("update %s/%s: %w", op.coll, op.id, ErrNotFound)
		}
		after := deepCopyMap(before)
		for path, v := range op.fields {
			setPath(after, path, v)
		}
		return after, nil
	default:
		return nil, fmt.Errorf("unknown write op %d", op.kind)
	}
}
