package docstore

import (
	"encoding/json"
	"strings"
)

// Snapshot is a point-in-time copy of a document. A snapshot for a missing
// document has Exists() == false and nil data.
type Snapshot struct {
	Collection string
	ID         string
	Version    int64
	data       map[string]any
}

func newSnapshot(coll, id string, version int64, data map[string]any) *Snapshot {
	return &Snapshot{Collection: coll, ID: id, Version: version, data: data}
}

func (s *Snapshot) Exists() bool {
	return s != nil && s.data != nil
}

// Data returns a deep copy of the document body. Mutating the returned map
// never affects the store.
func (s *Snapshot) Data() map[string]any {
	if !s.Exists() {
		return nil
	}
	return deepCopyMap(s.data)
}

// DataTo unmarshals the document body into v via a JSON round trip.
func (s *Snapshot) DataTo(v any) error {
	if !s.Exists() {
		return ErrNotFound
	}
	b, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Get resolves a dotted field path ("stats.gold") against the document.
func (s *Snapshot) Get(path string) (any, bool) {
	if !s.Exists() {
		return nil, false
	}
	return getPath(s.data, path)
}

// DataFrom converts a typed value into a document body via a JSON round trip.
func DataFrom(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func getPath(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := any(m)
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes value at a dotted field path, creating intermediate maps.
func setPath(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = deepCopyValue(value)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
