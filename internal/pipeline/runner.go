// Package pipeline orchestrates stage runs end to end: version resolution,
// workspace preparation, script assembly, tool execution, and harvest.
package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fabworks/pdflow/internal/config"
	"github.com/fabworks/pdflow/internal/db"
	"github.com/fabworks/pdflow/internal/errors"
	"github.com/fabworks/pdflow/internal/executor"
	"github.com/fabworks/pdflow/internal/layout"
	"github.com/fabworks/pdflow/internal/lock"
	"github.com/fabworks/pdflow/internal/report"
	"github.com/fabworks/pdflow/internal/restore"
	"github.com/fabworks/pdflow/internal/script"
	"github.com/fabworks/pdflow/internal/stage"
	"github.com/fabworks/pdflow/internal/version"
	"github.com/fabworks/pdflow/internal/workspace"
)

// Result statuses.
const (
	StatusSucceeded = "succeeded"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Result describes one stage run. On failure the identity and path fields
// are still populated as far as the run got, so callers can point at the
// log and script of a failed run.
type Result struct {
	Stage       string                `json:"stage"`
	Design      string                `json:"design"`
	Tech        string                `json:"tech"`
	SynVersion  string                `json:"syn_version,omitempty"`
	ImplVersion string                `json:"impl_version,omitempty"`
	Workspace   string                `json:"workspace,omitempty"`
	ScriptPath  string                `json:"script_path,omitempty"`
	LogPath     string                `json:"log_path,omitempty"`
	RestorePath string                `json:"restore_path,omitempty"`
	Status      string                `json:"status"`
	Error       string                `json:"error,omitempty"`
	ExitCode    int                   `json:"exit_code"`
	Duration    time.Duration         `json:"duration"`
	Reports     []report.Entry        `json:"reports,omitempty"`
	Artifacts   []report.ArtifactFile `json:"artifacts,omitempty"`
	Metrics     map[string]string     `json:"metrics,omitempty"`
	ArchivePath string                `json:"archive_path,omitempty"`
}

// Version returns the version the stage ran against.
func (r *Result) Version() string {
	if r.ImplVersion != "" {
		return r.ImplVersion
	}
	return r.SynVersion
}

// Runner executes stages.
type Runner struct {
	cfg      *config.Config
	paths    layout.Paths
	database *db.DB
	ws       *workspace.Manager
	exec     *executor.Executor
	resolver *version.Resolver
	locker   lock.Locker
	logger   *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewRunner wires a Runner from config. database may be nil; version
// resolution then relies on directory scanning alone.
func NewRunner(cfg *config.Config, database *db.DB, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	paths := layout.New(cfg.Root)
	var locker lock.Locker = lock.NoOpLocker{}
	if cfg.LockingEnabled() {
		locker = lock.NewFileLocker(lock.DefaultOwner())
	}
	return &Runner{
		cfg:      cfg,
		paths:    paths,
		database: database,
		ws:       workspace.NewManager(paths, logger),
		exec:     executor.New(logger),
		resolver: version.NewResolver(paths, database, logger),
		locker:   locker,
		logger:   logger,
		now:      time.Now,
	}
}

// Paths exposes the project layout the runner operates on.
func (r *Runner) Paths() layout.Paths {
	return r.paths
}

// Run executes one stage. The returned Result is non-nil whenever the
// request itself was valid, even if the run failed.
func (r *Runner) Run(ctx context.Context, req *stage.Request) (*Result, error) {
	if req.Tech == "" {
		req.Tech = r.cfg.Tech
	}
	spec, err := req.Validate()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Stage:  spec.Name,
		Design: req.Design,
		Tech:   req.Tech,
		Status: StatusFailed,
	}
	if err := r.run(ctx, spec, req, res); err != nil {
		res.Error = err.Error()
		return res, err
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, spec *stage.Spec, req *stage.Request, res *Result) error {
	// Resolve versions and the workspace directory.
	var wsDir string
	if spec.Kind == stage.KindSynthesis {
		synVer := req.SynVersion
		if synVer == "" {
			synVer = r.now().Format("20060102_150405")
		}
		res.SynVersion = synVer
		wsDir = r.paths.SynthesisDir(req.Design, req.Tech, synVer)
	} else {
		synVer, err := r.resolver.Synthesis(ctx, req.Design, req.Tech, req.SynVersion)
		if err != nil {
			return err
		}
		res.SynVersion = synVer

		implVer := req.ImplVersion
		if implVer == "" {
			if spec.Upstream != "" && req.GIdx == 0 && req.PIdx == 0 {
				// A restore-consuming stage with nothing pinned targets the
				// newest existing implementation version for this netlist.
				// When none exists yet the derived name below applies.
				if detected, err := r.resolver.Implementation(ctx, req.Design, req.Tech, synVer, ""); err == nil {
					implVer = detected
				}
			}
			if implVer == "" {
				implVer = layout.ImplVersion(synVer, req.GIdx, req.PIdx)
			}
		}
		res.ImplVersion = implVer
		wsDir = r.paths.ImplementationDir(req.Design, req.Tech, implVer)
	}
	res.Workspace = wsDir

	// The workspace must exist before the lock file can live in it, and
	// the lock must be held before force deletes anything.
	if _, err := r.ws.Ensure(spec, wsDir, false); err != nil {
		return err
	}
	if err := r.locker.Acquire(wsDir); err != nil {
		return err
	}
	defer func() { _ = r.locker.Release(wsDir) }()

	hb := lock.NewHeartbeatRunner(r.locker, wsDir, 0)
	hb.Start(ctx)
	defer hb.Stop()

	if req.Force {
		if _, err := r.ws.Ensure(spec, wsDir, true); err != nil {
			return err
		}
	} else if r.ws.Completed(spec, wsDir) {
		r.logger.Info("stage already complete, skipping",
			"stage", spec.Name, "workspace", wsDir)
		res.Status = StatusSkipped
		return r.harvest(ctx, spec, req, res)
	}

	// Upstream checkpoint. Missing state fails loudly before the tool is
	// ever spawned; the tool would otherwise grind for minutes and exit
	// zero with nothing to show.
	rst := restore.Resolve(spec, wsDir, req.Restore)
	if spec.Upstream != "" && !rst.Found {
		return errors.ErrCheckpointNotFound(spec.Upstream, rst.Path)
	}
	res.RestorePath = rst.Path

	if err := r.ws.CopyConfigs(req.Design, req.Tech, wsDir); err != nil {
		return err
	}

	// Assemble the script.
	binds, err := script.Build(spec, req, r.paths, res.SynVersion)
	if err != nil {
		return err
	}
	scriptPath := filepath.Join(r.paths.ScriptDir(req.Design, req.Tech), spec.ScriptFile)
	if _, err := script.WriteScript(script.Input{
		Spec:        spec,
		TemplateDir: r.paths.TemplateDir(req.Tech),
		Bindings:    binds,
		RestorePath: rst.Path,
	}, scriptPath); err != nil {
		return err
	}
	res.ScriptPath = scriptPath
	res.LogPath = workspace.LogPath(spec, wsDir, r.now())

	// Run the tool.
	env := append([]string{}, r.cfg.Tool.Env...)
	for _, b := range binds {
		env = append(env, b.Name+"="+b.Value)
	}
	execRes, err := r.exec.Execute(ctx, executor.Input{
		Spec:        spec,
		Workspace:   wsDir,
		ScriptPath:  scriptPath,
		LogPath:     res.LogPath,
		Tool:        r.cfg.Tool.Path,
		ToolArgs:    r.cfg.Tool.Args,
		Env:         env,
		PathPrepend: r.cfg.Tool.SearchPaths,
		Timeout:     r.cfg.Timeouts.StageTimeout(spec.Name),
	})
	res.ExitCode = execRes.ExitCode
	res.Duration = execRes.Duration
	if err != nil {
		return err
	}

	res.Status = StatusSucceeded
	if err := r.recordVersion(ctx, spec, req, res); err != nil {
		r.logger.Warn("record version", "error", err)
	}
	return r.harvest(ctx, spec, req, res)
}

// harvest collects reports, artifacts and metrics, and archives when asked.
func (r *Runner) harvest(ctx context.Context, spec *stage.Spec, req *stage.Request, res *Result) error {
	reports, err := report.Collect(spec, res.Workspace)
	if err != nil {
		return err
	}
	res.Reports = reports

	artifacts, err := report.CollectArtifacts(spec, res.Workspace)
	if err != nil {
		return err
	}
	res.Artifacts = artifacts
	res.Metrics = report.ExtractMetrics(spec, res.Workspace)

	if req.Archive && len(artifacts) > 0 {
		name := req.Design + "_" + res.Version()
		path, err := report.Archive(r.paths.DeliverablesDir(), name, artifacts)
		if err != nil {
			return err
		}
		res.ArchivePath = path
	}
	return ctx.Err()
}

func (r *Runner) recordVersion(ctx context.Context, spec *stage.Spec, req *stage.Request, res *Result) error {
	if r.database == nil {
		return nil
	}
	kind := db.KindImplementation
	ver := res.ImplVersion
	if spec.Kind == stage.KindSynthesis {
		kind = db.KindSynthesis
		ver = res.SynVersion
	}
	return r.database.RecordVersion(ctx, db.VersionRecord{
		Design:  req.Design,
		Tech:    req.Tech,
		Kind:    kind,
		Version: ver,
		Stage:   spec.Name,
		Status:  res.Status,
	})
}
