//go:build !windows

package process

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
)

const pollInterval = 100 * time.Millisecond

// SignalTerminator sends SIGTERM to every matching process, waits up to Wait
// for them to exit and then sends SIGKILL to the survivors.
type SignalTerminator struct {
	Finder Finder
	Wait   time.Duration
}

// NewTerminator returns the platform terminator.
func NewTerminator(f Finder, wait time.Duration) Terminator {
	return &SignalTerminator{Finder: f, Wait: wait}
}

func (t *SignalTerminator) TerminateByName(ctx context.Context, name string) (int, error) {
	insts, err := t.Finder.ListByName(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", name, err)
	}
	var merr *multierror.Error
	var pending []int
	for _, in := range insts {
		if err := syscall.Kill(in.PID, syscall.SIGTERM); err != nil {
			if errors.Is(err, syscall.ESRCH) {
				continue
			}
			merr = multierror.Append(merr, fmt.Errorf("SIGTERM pid %d: %w", in.PID, err))
			continue
		}
		pending = append(pending, in.PID)
	}
	stopped := len(pending)

	deadline := time.NewTimer(t.Wait)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
wait:
	for len(pending) > 0 {
		pending = alive(pending)
		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			break wait
		case <-deadline.C:
			break wait
		case <-tick.C:
		}
	}
	for _, pid := range alive(pending) {
		if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			merr = multierror.Append(merr, fmt.Errorf("SIGKILL pid %d: %w", pid, err))
			stopped--
		}
	}
	return stopped, merr.ErrorOrNil()
}

// alive filters pids that still exist. Children of this process are reaped
// first: a launched instance that exited stays a zombie until waited on.
func alive(pids []int) []int {
	out := pids[:0]
	for _, pid := range pids {
		var ws syscall.WaitStatus
		if wpid, _ := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil); wpid == pid {
			continue
		}
		if err := syscall.Kill(pid, 0); err != nil && errors.Is(err, syscall.ESRCH) {
			continue
		}
		out = append(out, pid)
	}
	return out
}
