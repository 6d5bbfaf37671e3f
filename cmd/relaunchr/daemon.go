package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/loykin/relaunchr/internal/process"
)

// daemonize starts this executable again in the background without the
// --daemonize flag and returns the child's PID.
func daemonize(pidFile string, logFile string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}

	// #nosec G204
	cmd := exec.Command(executable, daemonArgs(os.Args[1:])...)
	process.Detach(cmd)
	cmd.Stdin = nil

	if logFile != "" {
		// #nosec G304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = logF.Close() }()
		cmd.Stdout = logF
		cmd.Stderr = logF
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	if pidFile != "" {
		if err := writePidFile(pidFile, pid); err != nil {
			return pid, fmt.Errorf("failed to write PID file: %w", err)
		}
	}
	return pid, nil
}

// daemonArgs drops --daemonize and --logfile from args. The child keeps
// --pidfile so it removes the file on exit.
func daemonArgs(args []string) []string {
	var out []string
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		switch arg {
		case "--daemonize", "--daemonize=true":
			continue
		case "--logfile":
			skipNext = true
			continue
		}
		if strings.HasPrefix(arg, "--logfile=") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func ownPID() int { return os.Getpid() }

// writePidFile writes the daemon PID to a file
func writePidFile(pidFile string, pid int) error {
	// #nosec G302
	f, err := os.OpenFile(pidFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.WriteString(strconv.Itoa(pid))
	return err
}

// removePidFile removes the PID file
func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
