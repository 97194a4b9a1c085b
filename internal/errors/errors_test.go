package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowError_Error(t *testing.T) {
	err := ErrToolFailed(3)
	assert.Contains(t, err.Error(), "exited with code 3")

	wrapped := err.WithCause(fmt.Errorf("log at /tmp/x.log"))
	assert.Contains(t, wrapped.Error(), "log at /tmp/x.log")
}

func TestFlowError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := ErrConfigInvalid("bad value").WithCause(cause)
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestFlowError_Is(t *testing.T) {
	err := ErrCheckpointNotFound("cts", "/w/pnr_save/placement.enc")
	assert.True(t, stderrors.Is(err, &FlowError{Code: CodeCheckpointNotFound}))
	assert.False(t, stderrors.Is(err, &FlowError{Code: CodeToolFailed}))
}

func TestFlowError_Category(t *testing.T) {
	tests := []struct {
		err  *FlowError
		want Category
	}{
		{ErrTemplateMissing("x.tcl"), CategoryConfiguration},
		{ErrVariableUnresolved("cts", "cts_cell_density"), CategoryConfiguration},
		{ErrWorkspaceConflict("/w", "other@host"), CategoryWorkspace},
		{ErrVersionNotFound("synthesis", "des", "FreePDK45"), CategoryDependency},
		{ErrCheckpointNotFound("route", "/w/pnr_save/cts.enc"), CategoryDependency},
		{ErrToolFailed(1), CategoryExecution},
		{ErrToolTimeout("2h"), CategoryExecution},
		{ErrVerifyFailed([]string{"_Done_"}), CategoryVerification},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Category(), string(tt.err.Code))
	}
}

func TestCategory_Retriable(t *testing.T) {
	require.True(t, CategoryExecution.Retriable())
	require.True(t, CategoryWorkspace.Retriable())
	require.False(t, CategoryConfiguration.Retriable())
	require.False(t, CategoryDependency.Retriable())
	require.False(t, CategoryVerification.Retriable())
}
