//go:build !windows

package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks/pdflow/internal/errors"
	"github.com/fabworks/pdflow/internal/stage"
)

// fakeSpec is a minimal implementation-shaped stage for stub runs.
func fakeSpec() *stage.Spec {
	return &stage.Spec{
		Name:            "floorplan",
		Kind:            stage.KindImplementation,
		Marker:          stage.MarkerDone,
		RequiredOutputs: []string{"pnr_save/floorplan.enc.dat"},
		Timeout:         time.Minute,
	}
}

func writeStub(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "stub.tcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func newInput(t *testing.T, script string) Input {
	t.Helper()
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "pnr_save"), 0o755))
	return Input{
		Spec:       fakeSpec(),
		Workspace:  ws,
		ScriptPath: script,
		LogPath:    filepath.Join(ws, "pnr_logs", "floorplan.log"),
		Tool:       "/bin/sh",
	}
}

func TestExecuteSuccess(t *testing.T) {
	script := writeStub(t, t.TempDir(), `#!/bin/sh
echo "loading design"
mkdir -p pnr_save
touch pnr_save/floorplan.enc.dat
touch _Done_
`)
	in := newInput(t, script)

	res, err := New(nil).Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	data, err := os.ReadFile(in.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "loading design")
}

func TestExecuteRunsInWorkspace(t *testing.T) {
	// The marker is touched relative to cwd, so success proves cwd is
	// the workspace.
	script := writeStub(t, t.TempDir(), `#!/bin/sh
touch pnr_save/floorplan.enc.dat
touch _Done_
`)
	in := newInput(t, script)
	_, err := New(nil).Execute(context.Background(), in)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(in.Workspace, "_Done_"))
}

func TestExecuteEnvInjection(t *testing.T) {
	script := writeStub(t, t.TempDir(), `#!/bin/sh
echo "util=$TARGET_UTIL"
touch pnr_save/floorplan.enc.dat
touch _Done_
`)
	in := newInput(t, script)
	in.Env = []string{"TARGET_UTIL=0.7"}

	_, err := New(nil).Execute(context.Background(), in)
	require.NoError(t, err)

	data, err := os.ReadFile(in.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "util=0.7")
}

func TestExecuteCleanExitWithoutMarkerFails(t *testing.T) {
	// Batch tools exit zero after an aborted session; the marker is the
	// authoritative signal.
	script := writeStub(t, t.TempDir(), `#!/bin/sh
echo "aborting"
exit 0
`)
	in := newInput(t, script)

	_, err := New(nil).Execute(context.Background(), in)
	require.Error(t, err)
	var fe *errors.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errors.CodeVerifyFailed, fe.Code)
	assert.Contains(t, fe.Why, "_Done_")
}

func TestExecuteMarkerWithoutOutputsFails(t *testing.T) {
	script := writeStub(t, t.TempDir(), `#!/bin/sh
touch _Done_
`)
	in := newInput(t, script)

	_, err := New(nil).Execute(context.Background(), in)
	require.Error(t, err)
	var fe *errors.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errors.CodeVerifyFailed, fe.Code)
	assert.Contains(t, fe.Why, "pnr_save/floorplan.enc.dat")
}

func TestExecuteNonzeroExit(t *testing.T) {
	script := writeStub(t, t.TempDir(), `#!/bin/sh
echo "license error" >&2
exit 3
`)
	in := newInput(t, script)

	res, err := New(nil).Execute(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
	var fe *errors.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errors.CodeToolFailed, fe.Code)

	data, readErr := os.ReadFile(in.LogPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "license error")
}

func TestExecuteNonzeroExitFailsEvenWithOutputs(t *testing.T) {
	// Outputs on disk do not excuse a nonzero exit; the operator has to
	// look at the log and decide.
	script := writeStub(t, t.TempDir(), `#!/bin/sh
touch pnr_save/floorplan.enc.dat
touch _Done_
exit 1
`)
	in := newInput(t, script)

	res, err := New(nil).Execute(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, 1, res.ExitCode)
	var fe *errors.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errors.CodeToolFailed, fe.Code)
	assert.Nil(t, fe.Cause)
}

func TestExecuteTimeout(t *testing.T) {
	script := writeStub(t, t.TempDir(), `#!/bin/sh
sleep 30
`)
	in := newInput(t, script)
	in.Timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := New(nil).Execute(context.Background(), in)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)

	var fe *errors.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errors.CodeToolTimeout, fe.Code)
	assert.True(t, fe.Category().Retriable())
}

func TestExecuteCancellation(t *testing.T) {
	script := writeStub(t, t.TempDir(), `#!/bin/sh
sleep 30
`)
	in := newInput(t, script)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := New(nil).Execute(ctx, in)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
}
