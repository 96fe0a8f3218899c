//go:build unix

package toolchain

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group and signals the
// whole group on cancellation, so children the build spawned die with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
