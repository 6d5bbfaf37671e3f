package updater

import "sync/atomic"

// guard is a single-flight flag. Callers that lose the race are rejected,
// never queued.
type guard struct {
	held atomic.Bool
}

// TryAcquire takes the guard if it is free. The returned release is
// idempotent so it can be deferred on every exit path.
func (g *guard) TryAcquire() (release func(), ok bool) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, false
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.held.Store(false)
		}
	}, true
}

func (g *guard) Held() bool { return g.held.Load() }
