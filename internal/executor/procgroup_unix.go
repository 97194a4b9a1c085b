//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcAttr makes the tool the leader of a new process group so the whole
// tool tree can be killed at once.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills the entire process group (negative PID).
func killProcessGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}
