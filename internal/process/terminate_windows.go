//go:build windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// taskkill exits with 128 when no process matches the image name.
const taskkillNotFound = 128

// TaskkillTerminator force-terminates by image name, the only primitive that
// works without owning a handle to the process.
type TaskkillTerminator struct {
	Finder Finder
}

// NewTerminator returns the platform terminator. wait is unused: taskkill /F
// does not give the process a chance to shut down.
func NewTerminator(f Finder, _ time.Duration) Terminator {
	return &TaskkillTerminator{Finder: f}
}

func (t *TaskkillTerminator) TerminateByName(ctx context.Context, name string) (int, error) {
	count := 1
	if t.Finder != nil {
		if insts, err := t.Finder.ListByName(ctx, name); err == nil {
			if len(insts) == 0 {
				return 0, nil
			}
			count = len(insts)
		}
	}
	// #nosec G204 image name comes from supervisor configuration
	out, err := exec.CommandContext(ctx, "taskkill", "/F", "/IM", name).CombinedOutput()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && ee.ExitCode() == taskkillNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("taskkill %s: %w: %s", name, err, out)
	}
	return count, nil
}
