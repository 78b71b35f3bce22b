//go:build windows

package smoke

import "os/exec"

// setProcessGroup is a no-op on Windows; there is no direct equivalent of
// Unix process groups wired here, so timeout kill is best-effort.
func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup terminates the child process. Windows has no process
// group signal; this is best-effort and may leave grandchildren running.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
