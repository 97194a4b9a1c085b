package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks/pdflow/internal/layout"
	"github.com/fabworks/pdflow/internal/stage"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mustLookup(t *testing.T, name string) *stage.Spec {
	t.Helper()
	spec, err := stage.Lookup(name)
	require.NoError(t, err)
	return spec
}

func TestEnsureCreatesSubdirs(t *testing.T) {
	m := NewManager(layout.New(t.TempDir()), nil)
	spec := mustLookup(t, "floorplan")
	ws := filepath.Join(t.TempDir(), "v1__g0_p0")

	res, err := m.Ensure(spec, ws, false)
	require.NoError(t, err)
	assert.False(t, res.Reused)
	for _, sub := range []string{"pnr_save", "pnr_out", "pnr_reports", "pnr_logs"} {
		assert.DirExists(t, filepath.Join(ws, sub))
	}

	// Second Ensure is idempotent and flags reuse.
	res, err = m.Ensure(spec, ws, false)
	require.NoError(t, err)
	assert.True(t, res.Reused)
}

func TestEnsureForcePreservesUpstreamCheckpoint(t *testing.T) {
	m := NewManager(layout.New(t.TempDir()), nil)
	spec := mustLookup(t, "placement")
	ws := t.TempDir()

	// Upstream state plus this stage's own leftovers.
	touch(t, filepath.Join(ws, "pnr_save", "powerplan.enc"), "upstream")
	touch(t, filepath.Join(ws, "pnr_save", "placement.enc"), "old")
	touch(t, filepath.Join(ws, "pnr_reports", "place_timing.rpt.gz"), "old")
	touch(t, filepath.Join(ws, "pnr_out", "place.def"), "old")
	touch(t, filepath.Join(ws, "_Done_"), "")

	_, err := m.Ensure(spec, ws, true)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(ws, "pnr_save", "powerplan.enc"))
	assert.NoFileExists(t, filepath.Join(ws, "pnr_save", "placement.enc"))
	assert.NoFileExists(t, filepath.Join(ws, "pnr_reports", "place_timing.rpt.gz"))
	assert.NoFileExists(t, filepath.Join(ws, "pnr_out", "place.def"))
	assert.NoFileExists(t, filepath.Join(ws, "_Done_"))
}

func TestEnsureRejectsFileInTheWay(t *testing.T) {
	m := NewManager(layout.New(t.TempDir()), nil)
	spec := mustLookup(t, "floorplan")

	ws := filepath.Join(t.TempDir(), "v1__g0_p0")
	touch(t, ws, "not a directory")

	_, err := m.Ensure(spec, ws, false)
	require.Error(t, err)
}

func TestCompleted(t *testing.T) {
	m := NewManager(layout.New(t.TempDir()), nil)
	spec := mustLookup(t, "route")
	ws := t.TempDir()

	assert.False(t, m.Completed(spec, ws))

	touch(t, filepath.Join(ws, "_Done_"), "")
	// Marker alone is not enough.
	assert.False(t, m.Completed(spec, ws))

	touch(t, filepath.Join(ws, "pnr_save", "route_opt.enc"), "db")
	touch(t, filepath.Join(ws, "pnr_out", "route.def"), "def")
	assert.True(t, m.Completed(spec, ws))
}

func TestMissingOutputs(t *testing.T) {
	spec := mustLookup(t, "route")
	ws := t.TempDir()
	touch(t, filepath.Join(ws, "pnr_save", "route_opt.enc"), "db")

	missing, err := MissingOutputs(spec, ws)
	require.NoError(t, err)
	assert.Equal(t, []string{"pnr_out/route.def"}, missing)
}

func TestCopyConfigsNoOverwrite(t *testing.T) {
	root := t.TempDir()
	paths := layout.New(root)
	m := NewManager(paths, nil)

	touch(t, paths.DesignConfig("aes"), "set DESIGN aes")
	touch(t, paths.TechConfig("FreePDK45"), "set TECH FreePDK45")

	ws := t.TempDir()
	require.NoError(t, m.CopyConfigs("aes", "FreePDK45", ws))

	data, err := os.ReadFile(filepath.Join(ws, "config.tcl"))
	require.NoError(t, err)
	assert.Equal(t, "set DESIGN aes", string(data))
	assert.FileExists(t, filepath.Join(ws, "tech.tcl"))

	// A hand-edited copy survives a second run.
	touch(t, filepath.Join(ws, "config.tcl"), "edited")
	require.NoError(t, m.CopyConfigs("aes", "FreePDK45", ws))
	data, err = os.ReadFile(filepath.Join(ws, "config.tcl"))
	require.NoError(t, err)
	assert.Equal(t, "edited", string(data))
}

func TestCopyConfigsMissingSources(t *testing.T) {
	m := NewManager(layout.New(t.TempDir()), nil)
	require.NoError(t, m.CopyConfigs("aes", "FreePDK45", t.TempDir()))
}

func TestLogPath(t *testing.T) {
	spec := mustLookup(t, "cts")
	at := time.Date(2026, 8, 18, 14, 32, 5, 0, time.UTC)
	got := LogPath(spec, "/ws", at)
	assert.Equal(t, "/ws/pnr_logs/cts_20260818_143205.log", got)
}
