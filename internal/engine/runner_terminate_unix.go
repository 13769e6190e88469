//go:build !windows

package engine

import (
	"os/exec"
	"syscall"
)

// isolateProcessGroup puts the fetch tool in its own process group. The tool
// forks helpers (ffmpeg, fragment fetchers) that inherit our output pipe;
// killing only the direct child would leave those helpers holding the pipe
// open, and the line scanner would block until they exit on their own.
func isolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree takes down the whole group, then the child itself.
func killProcessTree(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if cmd.Process.Pid > 0 {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	_ = cmd.Process.Kill()
}
