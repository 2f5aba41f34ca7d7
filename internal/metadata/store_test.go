package metadata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(path string) Record {
	return Record{
		Path:          path,
		BlobID:        "blob-1",
		Hash:          "sha256:abc",
		PushedAt:      time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		DirectoryName: filepath.Base(path),
	}
}

func TestOpenCreatesReservedDir(t *testing.T) {
	root := t.TempDir()
	_, err := Open(root)
	require.NoError(t, err)

	st, err := os.Stat(filepath.Join(root, ReservedDir))
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestGetMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Get("/no/such/path")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertGetRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	rec := testRecord("/data/project")
	require.NoError(t, store.Upsert(rec))

	got, ok, err := store.Get("/data/project")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestUpsertReplacesExisting(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	rec := testRecord("/data/project")
	require.NoError(t, store.Upsert(rec))

	rec.BlobID = "blob-2"
	rec.Hash = "sha256:def"
	require.NoError(t, store.Upsert(rec))

	got, ok, err := store.Get("/data/project")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "blob-2", got.BlobID)
	assert.Equal(t, "sha256:def", got.Hash)

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertEmptyPath(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Upsert(Record{}))
}

func TestAllSortedByPath(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	for _, path := range []string{"/data/zeta", "/data/alpha", "/data/mid"} {
		require.NoError(t, store.Upsert(testRecord(path)))
	}

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/data/alpha", all[0].Path)
	assert.Equal(t, "/data/mid", all[1].Path)
	assert.Equal(t, "/data/zeta", all[2].Path)
}

func TestPersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(testRecord("/data/project")))

	reopened, err := Open(root)
	require.NoError(t, err)
	got, ok, err := reopened.Get("/data/project")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "blob-1", got.BlobID)
	assert.True(t, got.PushedAt.Equal(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)))
}

func TestFileFormat(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(testRecord("/data/project")))

	b, err := os.ReadFile(filepath.Join(root, ReservedDir, "metadata.json"))
	require.NoError(t, err)
	content := string(b)
	assert.Contains(t, content, `"/data/project"`)
	assert.Contains(t, content, `"blob_id": "blob-1"`)
	assert.Contains(t, content, `"hash": "sha256:abc"`)
	assert.Contains(t, content, `"pushed_at": "2026-08-23T12:00:00Z"`)
	assert.Contains(t, content, `"directory_name": "project"`)
}

func TestUpsertLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(testRecord("/data/a")))
	require.NoError(t, store.Upsert(testRecord("/data/b")))

	entries, err := os.ReadDir(filepath.Join(root, ReservedDir))
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.Name() == "metadata.json" || entry.Name() == "metadata.json.lock" {
			continue
		}
		assert.False(t, strings.HasPrefix(entry.Name(), "metadata.json."), "stray temp file %s", entry.Name())
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, ReservedDir, "metadata.json"), []byte("{truncated"), 0o644))

	_, _, err = store.Get("/data/project")
	assert.Error(t, err)
}
