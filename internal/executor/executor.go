// Package executor runs the external CAD tool against a generated script
// and decides whether the run actually succeeded. A zero exit code is not
// trusted on its own: batch tools routinely exit zero after an aborted
// session, so the completion marker and the required outputs must also be
// present.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	flowerrors "github.com/fabworks/pdflow/internal/errors"
	"github.com/fabworks/pdflow/internal/stage"
	"github.com/fabworks/pdflow/internal/workspace"
)

// Input describes one tool invocation.
type Input struct {
	Spec *stage.Spec

	// Workspace is the stage working directory and the tool's cwd.
	Workspace string

	// ScriptPath is the assembled batch script.
	ScriptPath string

	// LogPath receives the tool's combined stdout and stderr.
	LogPath string

	// Tool is the tool binary path or name, with its fixed arguments.
	Tool     string
	ToolArgs []string

	// Env entries (KEY=VALUE) appended to the inherited environment.
	Env []string

	// PathPrepend is joined in front of PATH so tool wrapper scripts
	// resolve their helpers.
	PathPrepend []string

	// Timeout bounds the run; zero falls back to the stage timeout.
	Timeout time.Duration
}

// Result is the outcome of a tool invocation.
type Result struct {
	ExitCode int
	Duration time.Duration
	LogPath  string
}

// Executor spawns and supervises tool processes.
type Executor struct {
	logger *slog.Logger
}

// New creates an Executor.
func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Execute runs the tool and verifies the outcome. The process runs in its
// own process group so a timeout or cancellation kills the whole tool tree,
// not just the wrapper.
func (e *Executor) Execute(ctx context.Context, in Input) (Result, error) {
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = in.Spec.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(in.LogPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.Create(in.LogPath)
	if err != nil {
		return Result{}, fmt.Errorf("create log file: %w", err)
	}
	defer logFile.Close()

	args := append(append([]string{}, in.ToolArgs...), in.ScriptPath)
	cmd := exec.CommandContext(runCtx, in.Tool, args...)
	cmd.Dir = in.Workspace
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = buildEnv(in.Env, in.PathPrepend)
	setProcAttr(cmd)
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return killProcessGroup(cmd.Process.Pid)
		}
		return nil
	}

	e.logger.Info("tool start",
		"stage", in.Spec.Name,
		"tool", in.Tool,
		"script", in.ScriptPath,
		"workspace", in.Workspace,
		"timeout", timeout)

	start := time.Now()
	runErr := cmd.Run()
	res := Result{
		Duration: time.Since(start),
		LogPath:  in.LogPath,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runCtx.Err() == context.DeadlineExceeded {
		e.logger.Error("tool timeout", "stage", in.Spec.Name, "limit", timeout)
		return res, flowerrors.ErrToolTimeout(timeout.String())
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return res, fmt.Errorf("spawn %s: %w", in.Tool, runErr)
		}
		e.logger.Error("tool failed", "stage", in.Spec.Name, "exit", res.ExitCode)
		if verifyErr := e.verify(in); verifyErr != nil {
			return res, flowerrors.ErrToolFailed(res.ExitCode).WithCause(verifyErr)
		}
		return res, flowerrors.ErrToolFailed(res.ExitCode)
	}

	if err := e.verify(in); err != nil {
		return res, err
	}

	e.logger.Info("tool done",
		"stage", in.Spec.Name,
		"exit", res.ExitCode,
		"duration", res.Duration.Round(time.Second))
	return res, nil
}

// verify checks the completion marker and required outputs.
func (e *Executor) verify(in Input) error {
	var missing []string
	if _, err := os.Stat(filepath.Join(in.Workspace, in.Spec.Marker)); err != nil {
		missing = append(missing, in.Spec.Marker)
	}
	missingOutputs, err := workspace.MissingOutputs(in.Spec, in.Workspace)
	if err != nil {
		return err
	}
	missing = append(missing, missingOutputs...)
	if len(missing) > 0 {
		return flowerrors.ErrVerifyFailed(missing)
	}
	return nil
}

func buildEnv(extra, pathPrepend []string) []string {
	env := append(os.Environ(), extra...)
	if len(pathPrepend) == 0 {
		return env
	}
	path := os.Getenv("PATH")
	prefix := ""
	for _, p := range pathPrepend {
		prefix += p + string(os.PathListSeparator)
	}
	return append(env, "PATH="+prefix+path)
}
