//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// Detach starts the child in its own session so it has no controlling
// terminal and does not receive signals aimed at the supervisor's group.
func Detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func checkExecutable(fi os.FileInfo) error {
	if fi.Mode().Perm()&0o111 == 0 {
		return errNotExecutable
	}
	return nil
}
