package docstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

type fileState struct {
	Collections map[string]map[string]fileDoc `json:"collections"`
}

type fileDoc struct {
	Data    map[string]any `json:"data"`
	Version int64          `json:"version"`
}

type fileBackend struct {
	mem  *memoryBackend
	path string
}

// OpenFileStore returns a memory store persisted as one JSON file under
// dataDir, written after every committed transaction.
func OpenFileStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	fb := &fileBackend{
		mem:  &memoryBackend{colls: map[string]map[string]*memDoc{}},
		path: filepath.Join(dataDir, "docstore.json"),
	}
	if err := fb.load(); err != nil {
		return nil, err
	}
	return newStore(fb), nil
}

func (f *fileBackend) load() error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var st fileState
	if err := json.Unmarshal(b, &st); err != nil {
		return err
	}
	colls := map[string]map[string]*memDoc{}
	for coll, docs := range st.Collections {
		colls[coll] = map[string]*memDoc{}
		for id, d := range docs {
			colls[coll][id] = &memDoc{data: d.Data, version: d.Version}
		}
	}
	f.mem.restore(colls)
	return nil
}

func (f *fileBackend) save() error {
	st := fileState{Collections: map[string]map[string]fileDoc{}}
	for coll, docs := range f.mem.dump() {
		st.Collections[coll] = map[string]fileDoc{}
		for id, d := range docs {
			st.Collections[coll][id] = fileDoc{Data: d.data, Version: d.version}
		}
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, b, 0o644)
}

func (f *fileBackend) get(ctx context.Context, coll, id string) (map[string]any, int64, error) {
	return f.mem.get(ctx, coll, id)
}

func (f *fileBackend) list(ctx context.Context, coll string) ([]rawDoc, error) {
	return f.mem.list(ctx, coll)
}

func (f *fileBackend) collections(ctx context.Context) ([]string, error) {
	return f.mem.collections(ctx)
}

func (f *fileBackend) commit(ctx context.Context, reads []readStamp, writes []writeOp) ([]applied, error) {
	out, err := f.mem.commit(ctx, reads, writes)
	if err != nil {
		return nil, err
	}
	if len(writes) > 0 {
		if err := f.save(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f *fileBackend) close() error {
	if err := f.save(); err != nil {
		return err
	}
	return f.mem.close()
}
