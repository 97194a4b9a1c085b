//go:build !windows

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks/pdflow/internal/config"
	"github.com/fabworks/pdflow/internal/db"
	"github.com/fabworks/pdflow/internal/errors"
	"github.com/fabworks/pdflow/internal/layout"
	"github.com/fabworks/pdflow/internal/stage"
)

// stubTool fakes the CAD tool: it inspects the script it was handed and
// fabricates the outputs that stage would produce. It marks every
// invocation with a .invoked file so tests can assert the tool was (not)
// spawned.
const stubTool = `#!/bin/sh
for a in "$@"; do script="$a"; done
echo ".invoked" >> .invoked
echo "running $script"
case "$script" in
*synthesis.tcl)
	mkdir -p results reports
	touch "results/${TOP_NAME}.mapped.v" "results/${TOP_NAME}.mapped.sdc"
	echo "slack 0.1" > reports/timing.rpt
	touch _Finished_
	;;
*floorplan.tcl)
	mkdir -p pnr_save pnr_reports
	touch pnr_save/floorplan.enc.dat
	echo "util 0.69" > pnr_reports/floorplan_summary.rpt
	touch _Done_
	;;
*powerplan.tcl)
	mkdir -p pnr_save
	touch pnr_save/powerplan.enc
	touch _Done_
	;;
*placement.tcl)
	mkdir -p pnr_save
	touch pnr_save/placement.enc
	touch _Done_
	;;
*cts.tcl)
	mkdir -p pnr_save
	touch pnr_save/cts.enc
	touch _Done_
	;;
*route.tcl)
	mkdir -p pnr_save pnr_out
	touch pnr_save/route_opt.enc pnr_out/route.def
	touch _Done_
	;;
*save.tcl)
	mkdir -p pnr_out
	touch "pnr_out/${TOP_NAME}_pnr.gds.gz" "pnr_out/${TOP_NAME}_pnr.v"
	touch _Done_
	;;
esac
`

type testEnv struct {
	root   string
	cfg    *config.Config
	db     *db.DB
	runner *Runner
	paths  layout.Paths
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	paths := layout.New(root)

	// Templates for every stage, referencing a bound variable each.
	for _, spec := range stage.Ordered() {
		dir := paths.TemplateDir(config.DefaultTech)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		body := "puts $env(design_flow_effort)\n"
		if spec.Kind == stage.KindSynthesis {
			body = "puts $env(clock_period)\n"
		}
		for _, tmpl := range spec.Templates {
			require.NoError(t, os.WriteFile(filepath.Join(dir, tmpl),
				[]byte("# "+tmpl+"\n"+body), 0o644))
		}
	}

	tool := filepath.Join(root, "fake_tool.sh")
	require.NoError(t, os.WriteFile(tool, []byte(stubTool), 0o755))

	cfg := config.Default(root)
	cfg.Tool.Path = tool
	cfg.Tool.Args = nil

	database, err := db.Open(context.Background(), paths.DatabasePath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return &testEnv{
		root:   root,
		cfg:    cfg,
		db:     database,
		runner: NewRunner(cfg, database, nil),
		paths:  paths,
	}
}

// seedSynthesis pretends a synthesis run already happened.
func (e *testEnv) seedSynthesis(t *testing.T, synVer string) {
	t.Helper()
	results := e.paths.SynthesisResults("aes", config.DefaultTech, synVer)
	require.NoError(t, os.MkdirAll(results, 0o755))
}

// seedCheckpoint drops an upstream checkpoint into an implementation
// workspace.
func (e *testEnv) seedCheckpoint(t *testing.T, implVer, name string) {
	t.Helper()
	dir := filepath.Join(e.paths.ImplementationDir("aes", config.DefaultTech, implVer), "pnr_save")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("ckpt"), 0o644))
}

func TestRunFloorplanFresh(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")

	res, err := e.runner.Run(context.Background(), &stage.Request{
		Stage:  "floorplan",
		Design: "aes",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, "v1", res.SynVersion)
	assert.Equal(t, "v1__g0_p0", res.ImplVersion)
	assert.FileExists(t, filepath.Join(res.Workspace, "pnr_save", "floorplan.enc.dat"))
	assert.FileExists(t, filepath.Join(res.Workspace, "_Done_"))

	// The generated script carries the header, body and footer.
	data, err := os.ReadFile(res.ScriptPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `set env(TOP_NAME) "aes"`)
	assert.Contains(t, text, "puts standard")
	assert.Contains(t, text, "exec touch _Done_")

	// And the report was harvested.
	require.NotEmpty(t, res.Reports)
	assert.Contains(t, res.Reports[0].Content, "util 0.69")

	// The manifest now knows this implementation version.
	ver, ok, err := e.db.LatestVersion(context.Background(), "aes", config.DefaultTech, db.KindImplementation)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1__g0_p0", ver)

	// The log captured tool output.
	logData, err := os.ReadFile(res.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "running")
}

func TestRunMissingUpstreamFailsBeforeSpawn(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")

	res, err := e.runner.Run(context.Background(), &stage.Request{
		Stage:  "powerplan",
		Design: "aes",
	})
	require.Error(t, err)
	var fe *errors.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errors.CodeCheckpointNotFound, fe.Code)
	assert.Contains(t, fe.What, "floorplan")

	// The failure is reported with the workspace it happened in, and the
	// tool was never spawned.
	require.NotNil(t, res)
	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEmpty(t, res.Workspace)
	assert.NoFileExists(t, filepath.Join(res.Workspace, ".invoked"))
}

func TestRunSkipsCompletedUnlessForced(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")
	e.seedCheckpoint(t, "v1__g0_p0", "powerplan.enc")

	req := &stage.Request{Stage: "placement", Design: "aes"}

	res, err := e.runner.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, res.Status)
	ws := res.Workspace
	require.NoError(t, os.Remove(filepath.Join(ws, ".invoked")))

	// Re-run without force: skipped, tool not spawned.
	res, err = e.runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.NoFileExists(t, filepath.Join(ws, ".invoked"))

	// Forced re-run spawns the tool again and keeps the upstream
	// checkpoint intact.
	req.Force = true
	res, err = e.runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.FileExists(t, filepath.Join(ws, ".invoked"))
	assert.FileExists(t, filepath.Join(ws, "pnr_save", "powerplan.enc"))
	assert.FileExists(t, filepath.Join(ws, "pnr_save", "placement.enc"))
}

func TestRunSynthesisCreatesVersion(t *testing.T) {
	e := newTestEnv(t)

	res, err := e.runner.Run(context.Background(), &stage.Request{
		Stage:  "synthesis",
		Design: "aes",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.NotEmpty(t, res.SynVersion)
	assert.Empty(t, res.ImplVersion)
	assert.FileExists(t, filepath.Join(res.Workspace, "results", "aes.mapped.v"))

	ver, ok, err := e.db.LatestVersion(context.Background(), "aes", config.DefaultTech, db.KindSynthesis)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.SynVersion, ver)
}

func TestRunExplicitVersionsAndParams(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")
	e.seedSynthesis(t, "v2")
	e.seedCheckpoint(t, "v1__g2_p3", "cts.enc")

	res, err := e.runner.Run(context.Background(), &stage.Request{
		Stage:      "route",
		Design:     "aes",
		SynVersion: "v1",
		GIdx:       2,
		PIdx:       3,
		Params:     map[string]any{"design_flow_effort": "extreme"},
	})
	require.NoError(t, err)
	assert.Equal(t, "v1__g2_p3", res.ImplVersion)
	assert.Contains(t, res.RestorePath, filepath.Join("pnr_save", "cts.enc"))

	data, err := os.ReadFile(res.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "puts extreme")
	assert.Contains(t, string(data), `source "`+res.RestorePath+`"`)
}

func TestRunResolvesLatestImplementationVersion(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")
	e.seedCheckpoint(t, "v1__g3_p4", "placement.enc")

	// Nothing pinned: cts must land in the implementation workspace that
	// holds the placement checkpoint, not a freshly derived __g0_p0 name.
	res, err := e.runner.Run(context.Background(), &stage.Request{
		Stage:  "cts",
		Design: "aes",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, "v1__g3_p4", res.ImplVersion)
	assert.Contains(t, res.RestorePath, filepath.Join("pnr_save", "placement.enc"))

	// An explicit version pin still wins over auto-detection.
	e.seedCheckpoint(t, "v1__g0_p0", "placement.enc")
	res, err = e.runner.Run(context.Background(), &stage.Request{
		Stage:       "cts",
		Design:      "aes",
		ImplVersion: "v1__g0_p0",
	})
	require.NoError(t, err)
	assert.Equal(t, "v1__g0_p0", res.ImplVersion)
}

func TestRunUnknownDesignFails(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.runner.Run(context.Background(), &stage.Request{
		Stage:  "floorplan",
		Design: "nonexistent",
	})
	require.Error(t, err)
	var fe *errors.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, errors.CodeVersionNotFound, fe.Code)
}

func TestRunFlowSequentialAbort(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")

	// Full implementation flow: each stage restores what the previous
	// one saved.
	results, err := e.runner.RunFlow(context.Background(), &FlowRequest{
		Design: "aes",
		From:   "floorplan",
		To:     "save",
	})
	require.NoError(t, err)
	require.Len(t, results, 6)
	for _, res := range results {
		assert.Equal(t, StatusSucceeded, res.Status, res.Stage)
		assert.Equal(t, "v1__g0_p0", res.ImplVersion)
	}
	last := results[len(results)-1]
	assert.Equal(t, "save", last.Stage)
	require.NotEmpty(t, last.Artifacts)
}

func TestRunFlowAbortsOnFailure(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")

	// No checkpoint for powerplan: the flow aborts there and placement
	// never runs.
	results, err := e.runner.RunFlow(context.Background(), &FlowRequest{
		Design: "aes",
		From:   "powerplan",
		To:     "placement",
	})
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "powerplan", results[0].Stage)
	assert.Equal(t, StatusFailed, results[0].Status)
}

func TestRunFlowRejectsInvertedSpan(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.runner.RunFlow(context.Background(), &FlowRequest{
		Design: "aes",
		From:   "route",
		To:     "floorplan",
	})
	require.Error(t, err)
}

func TestRunArchive(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")
	e.seedCheckpoint(t, "v1__g0_p0", "route_opt.enc")

	res, err := e.runner.Run(context.Background(), &stage.Request{
		Stage:   "save",
		Design:  "aes",
		Archive: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ArchivePath)
	assert.Equal(t,
		filepath.Join(e.root, "deliverables", "aes_v1__g0_p0.tar.gz"),
		res.ArchivePath)
	assert.FileExists(t, res.ArchivePath)
}

func TestJobsLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")
	jobs := NewJobs(e.runner, e.db, 2, nil)

	id, err := jobs.Submit(context.Background(), &stage.Request{
		Stage:  "floorplan",
		Design: "aes",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	jobs.Wait()

	rec, err := jobs.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, db.JobSucceeded, rec.Status)
	assert.Equal(t, "v1__g0_p0", rec.Version)
	assert.NotEmpty(t, rec.LogPath)
	assert.True(t, rec.Terminal())

	list, err := jobs.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
}

func TestJobsFailureRecorded(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")
	jobs := NewJobs(e.runner, e.db, 2, nil)

	// powerplan with no floorplan checkpoint fails.
	id, err := jobs.Submit(context.Background(), &stage.Request{
		Stage:  "powerplan",
		Design: "aes",
	})
	require.NoError(t, err)
	jobs.Wait()

	rec, err := jobs.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, db.JobFailed, rec.Status)
	assert.Contains(t, rec.Error, "checkpoint")
}

func TestJobsStartFailureIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")
	jobs := NewJobs(e.runner, e.db, 2, nil)

	// Force the pending-to-running transition to fail by moving the row
	// out of pending first. The job must still land in a terminal state
	// instead of sitting queued forever.
	ctx := context.Background()
	require.NoError(t, e.db.CreateJob(ctx, db.JobRecord{
		ID: "job-stuck", Stage: "floorplan", Design: "aes", Tech: config.DefaultTech,
	}))
	require.NoError(t, e.db.StartJob(ctx, "job-stuck"))

	jobs.wg.Add(1)
	jobs.execute(ctx, "job-stuck", &stage.Request{
		Stage: "floorplan", Design: "aes", Tech: config.DefaultTech,
	})

	rec, err := jobs.Status(ctx, "job-stuck")
	require.NoError(t, err)
	assert.Equal(t, db.JobFailed, rec.Status)
	assert.True(t, rec.Terminal())
	assert.Contains(t, rec.Error, "start job")
}

func TestJobsSubmitInvalidRequest(t *testing.T) {
	e := newTestEnv(t)
	jobs := NewJobs(e.runner, e.db, 2, nil)

	_, err := jobs.Submit(context.Background(), &stage.Request{
		Stage: "lint", Design: "aes",
	})
	require.Error(t, err)
}

func TestJobsCancel(t *testing.T) {
	e := newTestEnv(t)
	e.seedSynthesis(t, "v1")

	// A tool that never finishes on its own.
	slow := filepath.Join(e.root, "slow_tool.sh")
	require.NoError(t, os.WriteFile(slow, []byte("#!/bin/sh\nsleep 60\n"), 0o755))
	e.cfg.Tool.Path = slow
	runner := NewRunner(e.cfg, e.db, nil)
	jobs := NewJobs(runner, e.db, 2, nil)

	id, err := jobs.Submit(context.Background(), &stage.Request{
		Stage:  "floorplan",
		Design: "aes",
	})
	require.NoError(t, err)

	// Give the job a moment to reach the tool.
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, jobs.Cancel(context.Background(), id))
	jobs.Wait()

	rec, err := jobs.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, db.JobCanceled, rec.Status)

	// Canceling a finished job is an error.
	require.Error(t, jobs.Cancel(context.Background(), id))
}
