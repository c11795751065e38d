package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o770))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o660))
}

func TestMovePaths(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.txt"))
	touch(t, filepath.Join(dir, "b.txt"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "out"), 0o770))

	require.NoError(t, movePaths([]string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, filepath.Join(dir, "out")))
	assert.FileExists(t, filepath.Join(dir, "out", "a.txt"))
	assert.FileExists(t, filepath.Join(dir, "out", "b.txt"))

	require.NoError(t, movePaths([]string{filepath.Join(dir, "out", "a.txt")}, filepath.Join(dir, "renamed.txt")))
	assert.FileExists(t, filepath.Join(dir, "renamed.txt"))

	err := movePaths([]string{filepath.Join(dir, "out", "b.txt"), filepath.Join(dir, "renamed.txt")}, filepath.Join(dir, "single.txt"))
	assert.Error(t, err)
}

func TestRemovePaths(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "build", "classes", "A.class"))
	touch(t, filepath.Join(dir, "file.txt"))

	assert.Error(t, removePaths([]string{filepath.Join(dir, "build")}, false, false))
	require.NoError(t, removePaths([]string{filepath.Join(dir, "build"), filepath.Join(dir, "file.txt")}, true, false))
	assert.NoDirExists(t, filepath.Join(dir, "build"))
	assert.NoFileExists(t, filepath.Join(dir, "file.txt"))

	assert.Error(t, removePaths([]string{filepath.Join(dir, "missing")}, true, false))
	assert.NoError(t, removePaths([]string{filepath.Join(dir, "missing")}, true, true))
}

func TestMakeDirs(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")

	assert.Error(t, makeDirs([]string{nested}, false))
	require.NoError(t, makeDirs([]string{nested}, true))
	assert.DirExists(t, nested)
}
