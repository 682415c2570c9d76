//go:build unix

package procs

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Isolate places cmd in its own process group so Terminate reaches any
// children it spawns. Call before Start.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Terminate kills the process group of a started command.
func Terminate(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		// Not a group leader or already gone; fall back to the process itself.
		err = cmd.Process.Kill()
		if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
			return nil
		}
	}
	return err
}
