package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ledger/internal/errs"
	"github.com/joescharf/ledger/internal/models"
)

func TestFileBackend_Layout(t *testing.T) {
	root := filepath.Join(t.TempDir(), DefaultDir)
	l := New(NewFileBackend(root))
	ctx := context.Background()
	require.NoError(t, l.EnsureStore(ctx))

	for _, dir := range []string{"traces", "conflicts", "annotations", "annotations/consumed", "reports"} {
		assert.DirExists(t, filepath.Join(root, dir))
	}

	data, err := os.ReadFile(filepath.Join(root, "sessions.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"sessions":{}}`, string(data))
}

func TestFileBackend_KeysMapToFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), DefaultDir)
	l := New(NewFileBackend(root))
	ctx := context.Background()
	require.NoError(t, l.EnsureStore(ctx))

	_, err := l.UpsertConflictState(ctx, "s1", models.ConflictPatch{Status: models.ConflictStatusDetected})
	require.NoError(t, err)
	_, err = l.WritePendingAnnotation(ctx, &models.AnnotationRecord{Prompt: "why"})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "conflicts", "s1.json"))
	assert.FileExists(t, filepath.Join(root, "annotations", "pending.json"))

	_, err = l.ConsumePendingAnnotation(ctx, "abc")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "annotations", "consumed", "abc.json"))
	assert.NoFileExists(t, filepath.Join(root, "annotations", "pending.json"))
}

func TestFileBackend_PutLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "a/b.json", []byte("1")))
	require.NoError(t, b.Put(ctx, "a/b.json", []byte("2")))

	entries, err := os.ReadDir(filepath.Join(root, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.json", entries[0].Name())

	data, err := b.Get(ctx, "a/b.json")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestFileBackend_GetMissing(t *testing.T) {
	b := NewFileBackend(t.TempDir())
	_, err := b.Get(context.Background(), "nope.json")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.NoError(t, b.Delete(context.Background(), "nope.json"))
}

func TestBackends_List(t *testing.T) {
	ctx := context.Background()
	sqliteBackend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), SQLiteDBName))
	require.NoError(t, err)
	require.NoError(t, sqliteBackend.Init(ctx, nil))
	defer sqliteBackend.Close()

	backends := map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   NewFileBackend(t.TempDir()),
		"sqlite": sqliteBackend,
	}
	for name, b := range backends {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Put(ctx, "traces/b.md", []byte("b")))
			require.NoError(t, b.Put(ctx, "traces/a.md", []byte("a")))
			require.NoError(t, b.Put(ctx, "sessions.json", []byte("{}")))

			keys, err := b.List(ctx, "traces/")
			require.NoError(t, err)
			assert.Equal(t, []string{"traces/a.md", "traces/b.md"}, keys)

			all, err := b.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestSQLiteBackend_MigrateIdempotent(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "sub", SQLiteDBName))
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Migrate(ctx))
	assert.NoError(t, b.Migrate(ctx))
}
