package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type memDoc struct {
	data    map[string]any
	version int64
}

type memoryBackend struct {
	mu     sync.Mutex
	colls  map[string]map[string]*memDoc
	closed bool
}

// NewMemoryStore returns an in-process store. It is the canonical backend:
// the others replicate its commit semantics over their own persistence.
func NewMemoryStore() *Store {
	return newStore(&memoryBackend{colls: map[string]map[string]*memDoc{}})
}

func (m *memoryBackend) get(_ context.Context, coll, id string) (map[string]any, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, 0, ErrClosed
	}
	doc, ok := m.colls[coll][id]
	if !ok {
		return nil, 0, nil
	}
	return deepCopyMap(doc.data), doc.version, nil
}

func (m *memoryBackend) list(_ context.Context, coll string) ([]rawDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(m.colls[coll]))
	for id := range m.colls[coll] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]rawDoc, 0, len(ids))
	for _, id := range ids {
		doc := m.colls[coll][id]
		out = append(out, rawDoc{
			Collection: coll,
			ID:         id,
			Data:       deepCopyMap(doc.data),
			Version:    doc.version,
		})
	}
	return out, nil
}

func (m *memoryBackend) collections(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]string, 0, len(m.colls))
	for coll, docs := range m.colls {
		if len(docs) > 0 {
			out = append(out, coll)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryBackend) commit(_ context.Context, reads []readStamp, writes []writeOp) ([]applied, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	for _, r := range reads {
		var current int64
		if doc, ok := m.colls[r.coll][r.id]; ok {
			current = doc.version
		}
		if current != r.version {
			return nil, ErrConflict
		}
	}

	out := make([]applied, 0, len(writes))
	for _, op := range writes {
		var before map[string]any
		var version int64
		if doc, ok := m.colls[op.coll][op.id]; ok {
			before = doc.data
			version = doc.version
		}
		after, err := applyWriteOp(before, op)
		if err != nil {
			return nil, err
		}
		// Round-trip through JSON so stored values carry the same dynamic
		// types (float64 numbers, []any slices) as the file and SQL
		// backends return.
		after, err = jsonNormalize(after)
		if err != nil {
			return nil, fmt.Errorf("normalize %s/%s: %w", op.coll, op.id, err)
		}
		if after == nil {
			delete(m.colls[op.coll], op.id)
		} else {
			if m.colls[op.coll] == nil {
				m.colls[op.coll] = map[string]*memDoc{}
			}
			m.colls[op.coll][op.id] = &memDoc{data: after, version: version + 1}
		}
		out = append(out, applied{
			coll:   op.coll,
			id:     op.id,
			before: newSnapshot(op.coll, op.id, version, deepCopyMap(before)),
			after:  newSnapshot(op.coll, op.id, version+1, deepCopyMap(after)),
		})
	}
	return out, nil
}

func jsonNormalize(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *memoryBackend) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// dump and restore support the file-backed store.
func (m *memoryBackend) dump() map[string]map[string]*memDoc {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]map[string]*memDoc, len(m.colls))
	for coll, docs := range m.colls {
		out[coll] = make(map[string]*memDoc, len(docs))
		for id, doc := range docs {
			out[coll][id] = &memDoc{data: deepCopyMap(doc.data), version: doc.version}
		}
	}
	return out
}

func (m *memoryBackend) restore(colls map[string]map[string]*memDoc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.colls = colls
}
