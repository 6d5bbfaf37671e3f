// Package process finds, stops and launches the managed executable.
//
// The supervisor never owns the managed process: it is located by name on
// every run and started detached, so restarting the supervisor leaves it
// running.
package process

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrLaunch wraps failures to start the managed executable.
var ErrLaunch = errors.New("process: launch failed")

// Instance is one running copy of the managed executable.
type Instance struct {
	PID        int       `json:"pid"`
	Name       string    `json:"name"`
	Exe        string    `json:"exe,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	RSSBytes   uint64    `json:"rss_bytes,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
}

// Handle is a non-owning reference to a launched process.
type Handle struct {
	PID        int       `json:"pid"`
	Executable string    `json:"executable"`
	StartedAt  time.Time `json:"started_at"`
}

// Finder lists running processes whose executable file name matches name.
type Finder interface {
	ListByName(ctx context.Context, name string) ([]Instance, error)
}

// Terminator stops every process running the executable called name and
// reports how many it stopped. Zero with a nil error means none was running.
type Terminator interface {
	TerminateByName(ctx context.Context, name string) (int, error)
}

// StopOutcome is the result of Controller.Stop. Err carries termination
// failures for logging; it never fails an update.
type StopOutcome struct {
	Stopped int
	Err     error
}

func (o StopOutcome) NotRunning() bool { return o.Stopped == 0 && o.Err == nil }

func (o StopOutcome) String() string {
	switch {
	case o.Err != nil:
		return "error"
	case o.Stopped == 0:
		return "not_running"
	}
	return "stopped"
}

// ImageName is the executable file name processes are matched against.
func ImageName(executable string) string {
	return filepath.Base(executable)
}

// matchName compares a process against the wanted image name. The process
// name is tried first, then the base of its executable path, since some
// platforms truncate names (linux comm is 15 bytes).
func matchName(procName, exe, want string) bool {
	if want == "" {
		return false
	}
	eq := func(a, b string) bool { return a == b }
	if runtime.GOOS == "windows" {
		want = strings.TrimSuffix(strings.ToLower(want), ".exe")
		eq = func(a, b string) bool {
			return strings.TrimSuffix(strings.ToLower(a), ".exe") == b
		}
	}
	if procName != "" && eq(procName, want) {
		return true
	}
	return exe != "" && eq(filepath.Base(exe), want)
}
