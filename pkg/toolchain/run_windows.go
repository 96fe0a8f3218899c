//go:build windows

package toolchain

import "os/exec"

// Process groups are a unix concept; on windows the wait delay set alongside
// still unblocks the run once the direct child is killed.
func setProcessGroup(cmd *exec.Cmd) {}
