//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the interpreter in its own process group so a kill
// also reaches the children it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcess kills the whole process group, falling back to the process
// itself.
func killProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
