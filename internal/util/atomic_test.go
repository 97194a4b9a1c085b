package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	// Nested path: missing parents are created on the way.
	path := filepath.Join(t.TempDir(), "result", "aes", "floorplan.tcl")
	require.NoError(t, AtomicWriteFile(path, []byte("setDesignMode -process 45\n"), 0o640))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "setDesignMode -process 45\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestAtomicWriteFileReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, AtomicWriteFileString(path, "tech: FreePDK45\n", 0o644))
	require.NoError(t, AtomicWriteFileString(path, "tech: tsmc16\n", 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tech: tsmc16\n", string(data))
}

func TestAtomicWriteFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, AtomicWriteFile(filepath.Join(dir, "lock.yaml"), []byte("owner: alice\n"), 0o644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lock.yaml", entries[0].Name())
}
