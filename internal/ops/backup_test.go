package ops

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scheda/internal/docstore"
)

func seedBackupStore(t *testing.T) *docstore.Store {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "users", "u1", map[string]any{
		"stats": map[string]any{"gold": float64(100), "level": float64(3)},
	}))
	require.NoError(t, store.Set(ctx, "users", "u2", map[string]any{
		"stats": map[string]any{"gold": float64(5)},
	}))
	require.NoError(t, store.Set(ctx, "items", "pozione", map[string]any{
		"General": map[string]any{"Nome": "Pozione", "prezzo": float64(15)},
	}))
	require.NoError(t, store.Set(ctx, "utils", "varie", map[string]any{
		"hpMultByLevel": map[string]any{"1": float64(5)},
	}))
	return store
}

func TestBackupRestoreStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := seedBackupStore(t)

	archive := filepath.Join(t.TempDir(), "backup.tar.gz")
	n, err := BackupStore(ctx, src, archive)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	dst := docstore.NewMemoryStore()
	n, err = RestoreStore(ctx, dst, archive)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	colls, err := dst.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"items", "users", "utils"}, colls)

	snap, err := dst.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.True(t, snap.Exists())
	gold, _ := snap.Get("stats.gold")
	assert.Equal(t, float64(100), gold)

	snap, err = dst.Get(ctx, "items", "pozione")
	require.NoError(t, err)
	nome, _ := snap.Get("General.Nome")
	assert.Equal(t, "Pozione", nome)
}

func TestExportStore_IsDeterministic(t *testing.T) {
	ctx := context.Background()
	store := seedBackupStore(t)

	var a, b bytes.Buffer
	_, err := ExportStore(ctx, store, &a)
	require.NoError(t, err)
	_, err = ExportStore(ctx, store, &b)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes(), "same data must export to identical archives")
}

func TestImportStore_ReplacesExistingDocuments(t *testing.T) {
	ctx := context.Background()
	src := seedBackupStore(t)

	var buf bytes.Buffer
	_, err := ExportStore(ctx, src, &buf)
	require.NoError(t, err)

	dst := docstore.NewMemoryStore()
	require.NoError(t, dst.Set(ctx, "users", "u1", map[string]any{
		"stats": map[string]any{"gold": float64(1)},
	}))
	require.NoError(t, dst.Set(ctx, "users", "extra", map[string]any{"keep": true}))

	_, err = ImportStore(ctx, dst, &buf)
	require.NoError(t, err)

	snap, err := dst.Get(ctx, "users", "u1")
	require.NoError(t, err)
	gold, _ := snap.Get("stats.gold")
	assert.Equal(t, float64(100), gold, "archived body wins over the stale local one")

	snap, err = dst.Get(ctx, "users", "extra")
	require.NoError(t, err)
	assert.True(t, snap.Exists(), "documents absent from the archive stay put")
}

func TestImportStore_RejectsBadEntryPaths(t *testing.T) {
	for _, name := range []string{
		"../escape.json",
		"/abs/users.json",
		"users/nested/u1.json",
		"users/u1.txt",
	} {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		tw := tar.NewWriter(gz)
		body := []byte(`{"version":1,"data":{}}`)
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(body)),
		}))
		_, err := tw.Write(body)
		require.NoError(t, err)
		require.NoError(t, tw.Close())
		require.NoError(t, gz.Close())

		_, err = ImportStore(context.Background(), docstore.NewMemoryStore(), &buf)
		assert.Error(t, err, "entry %q must be rejected", name)
	}
}
