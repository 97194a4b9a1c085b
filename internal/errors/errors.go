// Package errors provides structured error types for pdflow.
package errors

import (
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for pdflow.
const (
	// Configuration errors
	CodeConfigInvalid      Code = "CONFIG_INVALID"
	CodeTemplateMissing    Code = "TEMPLATE_MISSING"
	CodeVariableUnresolved Code = "VARIABLE_UNRESOLVED"

	// Workspace errors
	CodeWorkspaceConflict Code = "WORKSPACE_CONFLICT"
	CodeWorkspaceInvalid  Code = "WORKSPACE_INVALID"

	// Dependency errors
	CodeVersionNotFound    Code = "VERSION_NOT_FOUND"
	CodeCheckpointNotFound Code = "CHECKPOINT_NOT_FOUND"

	// Execution errors
	CodeToolFailed  Code = "TOOL_FAILED"
	CodeToolTimeout Code = "TOOL_TIMEOUT"

	// Verification errors
	CodeVerifyFailed Code = "VERIFY_FAILED"
)

// Category groups error codes by failure class.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryConfiguration
	CategoryWorkspace
	CategoryDependency
	CategoryExecution
	CategoryVerification
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeConfigInvalid:      CategoryConfiguration,
	CodeTemplateMissing:    CategoryConfiguration,
	CodeVariableUnresolved: CategoryConfiguration,
	CodeWorkspaceConflict:  CategoryWorkspace,
	CodeWorkspaceInvalid:   CategoryWorkspace,
	CodeVersionNotFound:    CategoryDependency,
	CodeCheckpointNotFound: CategoryDependency,
	CodeToolFailed:         CategoryExecution,
	CodeToolTimeout:        CategoryExecution,
	CodeVerifyFailed:       CategoryVerification,
}

// Retriable reports whether resubmitting the same request can succeed
// without operator intervention. Configuration errors never are.
func (c Category) Retriable() bool {
	switch c {
	case CategoryExecution, CategoryWorkspace:
		return true
	default:
		return false
	}
}

// FlowError is the structured error type for pdflow.
type FlowError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// Category returns the error category.
func (e *FlowError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// Is reports whether target is a FlowError with the same code.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *FlowError) WithCause(err error) *FlowError {
	return &FlowError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrTemplateMissing returns an error for a missing template script.
func ErrTemplateMissing(path string) *FlowError {
	return &FlowError{
		Code: CodeTemplateMissing,
		What: fmt.Sprintf("template script not found: %s", path),
		Why:  "the stage declares this template but it does not exist on disk",
		Fix:  "check the scripts/<tech>/backend directory for the expected files",
	}
}

// ErrVariableUnresolved returns an error for a variable the request cannot satisfy.
func ErrVariableUnresolved(stage, name string) *FlowError {
	return &FlowError{
		Code: CodeVariableUnresolved,
		What: fmt.Sprintf("stage %s declares variable %q but the request does not provide it", stage, name),
		Fix:  fmt.Sprintf("pass the value explicitly (e.g. --param %s=<value>)", name),
	}
}

// ErrConfigInvalid returns an error for an invalid configuration.
func ErrConfigInvalid(why string) *FlowError {
	return &FlowError{
		Code: CodeConfigInvalid,
		What: "configuration is invalid",
		Why:  why,
	}
}

// ErrWorkspaceConflict returns an error when a workspace is held by another run.
func ErrWorkspaceConflict(dir, owner string) *FlowError {
	return &FlowError{
		Code: CodeWorkspaceConflict,
		What: fmt.Sprintf("workspace %s is locked", dir),
		Why:  fmt.Sprintf("held by %s", owner),
		Fix:  "wait for the other run to finish, or remove a stale lock.yaml",
	}
}

// ErrWorkspaceInvalid returns an error for a workspace in an unexpected state.
func ErrWorkspaceInvalid(dir, why string) *FlowError {
	return &FlowError{
		Code: CodeWorkspaceInvalid,
		What: fmt.Sprintf("workspace %s is in an unexpected state", dir),
		Why:  why,
	}
}

// ErrVersionNotFound returns an error when no candidate version directory exists.
func ErrVersionNotFound(kind, design, tech string) *FlowError {
	return &FlowError{
		Code: CodeVersionNotFound,
		What: fmt.Sprintf("no %s version found for %s/%s", kind, design, tech),
		Fix:  "run the upstream stage first, or pass the version explicitly",
	}
}

// ErrCheckpointNotFound returns an error for a missing upstream checkpoint.
func ErrCheckpointNotFound(stage, path string) *FlowError {
	return &FlowError{
		Code: CodeCheckpointNotFound,
		What: fmt.Sprintf("upstream %s checkpoint does not exist", stage),
		Why:  fmt.Sprintf("looked for %s", path),
		Fix:  "run the upstream stage first, or pass --restore with a valid checkpoint",
	}
}

// ErrToolFailed returns an error for a nonzero tool exit.
func ErrToolFailed(exitCode int) *FlowError {
	return &FlowError{
		Code: CodeToolFailed,
		What: fmt.Sprintf("tool exited with code %d", exitCode),
		Fix:  "inspect the stage log for the tool's own error output",
	}
}

// ErrToolTimeout returns an error for a timed-out tool invocation.
func ErrToolTimeout(limit string) *FlowError {
	return &FlowError{
		Code: CodeToolTimeout,
		What: fmt.Sprintf("tool did not finish within %s", limit),
		Why:  "the process group was killed after the stage timeout elapsed",
	}
}

// ErrVerifyFailed returns an error when the tool exited zero but the stage
// did not produce its completion marker or required outputs.
func ErrVerifyFailed(missing []string) *FlowError {
	return &FlowError{
		Code: CodeVerifyFailed,
		What: "tool reported success but required outputs are missing",
		Why:  strings.Join(missing, ", "),
		Fix:  "inspect the stage log; the tool may have skipped steps silently",
	}
}
