package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"b.csv":         "x",
		"a.txt":         "x",
		".hidden":       "x",
		"sub/c.json":    "{}",
		".git/config":   "x",
		"sub/.d/e.json": "{}",
	})

	flat, err := CollectFiles(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.csv")}, flat)

	all, err := CollectFiles(dir, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = CollectFiles(filepath.Join(dir, "missing"), true)
	assert.Error(t, err)
}

func TestProcessBatchKeepsOrderAndFailures(t *testing.T) {
	svc, db := newService(t)
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"energy.csv": string(semicolonCSV(2)),
		"heat.txt":   "Тепловая энергия 12,5 Гкал",
	})
	paths := []string{
		filepath.Join(dir, "energy.csv"),
		filepath.Join(dir, "missing.pdf"),
		filepath.Join(dir, "heat.txt"),
	}

	calls := 0
	items, err := svc.ProcessBatch(context.Background(), paths, 2, func(BatchItem) { calls++ })
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 3, calls)

	for i, it := range items {
		assert.Equal(t, paths[i], it.Path)
	}
	assert.NoError(t, items[0].Err)
	assert.True(t, items[0].Result.Parse.Result.Success)
	assert.Error(t, items[1].Err)
	assert.NoError(t, items[2].Err)

	rows, err := db.GetEntryExportRows(nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rows), 3)
}

func TestProcessBatchCancelled(t *testing.T) {
	svc, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.ProcessBatch(ctx, []string{"a.csv", "b.csv"}, 1, nil)
	require.ErrorIs(t, err, context.Canceled)
}
