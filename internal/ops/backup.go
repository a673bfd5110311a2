package ops

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"scheda/internal/docstore"
)

// archiveDoc is one document as written into a backup archive. The version
// travels for diagnostics only; restores re-insert starting at version 1.
type archiveDoc struct {
	Version int64          `json:"version"`
	Data    map[string]any `json:"data"`
}

// ExportStore writes every document in the store to w as a gzipped tar,
// one <collection>/<id>.json entry per document. Entries are emitted in
// sorted collection and id order with zeroed timestamps, so exporting the
// same data twice yields byte-identical archives. Each document is read
// through the store, which makes the export backend-agnostic: a live
// SQLite file or a remote Postgres exports the same way the file backend
// does.
func ExportStore(ctx context.Context, store *docstore.Store, w io.Writer) (int, error) {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	colls, err := store.Collections(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, coll := range colls {
		if strings.ContainsAny(coll, "/\\") {
			return count, fmt.Errorf("collection %q: separators are not archivable", coll)
		}
		snaps, err := store.List(ctx, coll)
		if err != nil {
			return count, err
		}
		for _, snap := range snaps {
			if strings.ContainsAny(snap.ID, "/\\") {
				return count, fmt.Errorf("document %s/%s: separators are not archivable", coll, snap.ID)
			}
			body, err := json.MarshalIndent(archiveDoc{Version: snap.Version, Data: snap.Data()}, "", "  ")
			if err != nil {
				return count, err
			}
			hdr := &tar.Header{
				Name: path.Join(coll, snap.ID+".json"),
				Mode: 0o644,
				Size: int64(len(body)),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return count, err
			}
			if _, err := tw.Write(body); err != nil {
				return count, err
			}
			count++
		}
	}

	if err := tw.Close(); err != nil {
		return count, err
	}
	return count, gz.Close()
}

// ImportStore reads an ExportStore archive from r and writes every
// document into the store, replacing documents that already exist under
// the same collection and id. Documents not named in the archive are left
// alone.
func ImportStore(ctx context.Context, store *docstore.Store, r io.Reader) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	count := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		coll, id, err := splitArchiveEntry(hdr.Name)
		if err != nil {
			return count, err
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return count, err
		}
		var doc archiveDoc
		if err := json.Unmarshal(body, &doc); err != nil {
			return count, fmt.Errorf("decode archive entry %s: %w", hdr.Name, err)
		}
		if err := store.Set(ctx, coll, id, doc.Data); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// BackupStore exports the store to a .tar.gz archive on disk.
func BackupStore(ctx context.Context, store *docstore.Store, archivePath string) (int, error) {
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	if archivePath == "" || archivePath == "." {
		return 0, fmt.Errorf("archivePath is required")
	}
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(archivePath)
	if err != nil {
		return 0, err
	}
	n, err := ExportStore(ctx, store, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// RestoreStore imports a backup archive from disk into the store.
func RestoreStore(ctx context.Context, store *docstore.Store, archivePath string) (int, error) {
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	if archivePath == "" || archivePath == "." {
		return 0, fmt.Errorf("archivePath is required")
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ImportStore(ctx, store, f)
}

// splitArchiveEntry validates a "<collection>/<id>.json" entry name.
// Anything absolute, traversing, or nested deeper than one level is
// rejected so a crafted archive cannot smuggle documents into odd places.
func splitArchiveEntry(name string) (coll, id string, err error) {
	clean := path.Clean(strings.TrimSpace(name))
	if clean == "" || clean == "." || path.IsAbs(clean) ||
		clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", fmt.Errorf("invalid archive entry path: %q", name)
	}
	parts := strings.Split(clean, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid archive entry path: %q", name)
	}
	coll = parts[0]
	id = strings.TrimSuffix(parts[1], ".json")
	if coll == "" || id == "" || !strings.HasSuffix(parts[1], ".json") {
		return "", "", fmt.Errorf("invalid archive entry path: %q", name)
	}
	return coll, id, nil
}
