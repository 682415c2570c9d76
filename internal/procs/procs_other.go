//go:build !unix

package procs

import (
	"errors"
	"os"
	"os/exec"
)

// Isolate is a no-op where process groups are unavailable.
func Isolate(cmd *exec.Cmd) {}

// Terminate kills the process group of a started command.
func Terminate(cmd *exec.Cmd) error {
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
