//go:build windows

package executor

import (
	"os"
	"os/exec"
)

// setProcAttr is a no-op on Windows, which has no POSIX process groups.
func setProcAttr(cmd *exec.Cmd) {
}

// killProcessGroup kills the direct child; Windows has no process groups to
// address by negative pid, so grandchildren may survive.
func killProcessGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
