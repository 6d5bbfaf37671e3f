package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/loykin/relaunchr/internal/history"
	"github.com/loykin/relaunchr/internal/manifest"
	"github.com/loykin/relaunchr/internal/process"
)

// journal records calls across fakes so tests can assert ordering.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.calls = append(j.calls, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type fakeFetcher struct {
	j       *journal
	desc    manifest.Descriptor
	err     error
	panics  bool
	entered chan struct{} // signalled when Fetch is entered, if set
	block   chan struct{} // Fetch waits on it, if set
}

func (f *fakeFetcher) Fetch(ctx context.Context) (manifest.Descriptor, error) {
	f.j.add("fetch")
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return manifest.Descriptor{}, fmt.Errorf("%w: %w", manifest.ErrNetwork, ctx.Err())
		}
	}
	if f.panics {
		panic("fetcher exploded")
	}
	return f.desc, f.err
}

type fakeInstaller struct {
	j   *journal
	err error
	n   int
}

func (i *fakeInstaller) Install(_ context.Context, url, dest string) (int64, error) {
	i.j.add("install " + url)
	if i.err != nil {
		return 0, i.err
	}
	i.n++
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	body := []byte(fmt.Sprintf("binary %d", i.n))
	if err := os.WriteFile(dest, body, 0o755); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

type fakeController struct {
	j        *journal
	mu       sync.Mutex
	running  []process.Instance
	stopErr  error
	startErr error
	listErr  error
	envs     []map[string]string
	nextPID  int
}

func (c *fakeController) Stop(context.Context) process.StopOutcome {
	c.j.add("stop")
	c.mu.Lock()
	defer c.mu.Unlock()
	out := process.StopOutcome{Stopped: len(c.running), Err: c.stopErr}
	c.running = nil
	return out
}

func (c *fakeController) Start(_ context.Context, vars map[string]string) (process.Handle, error) {
	c.j.add("start")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return process.Handle{}, c.startErr
	}
	c.nextPID++
	c.envs = append(c.envs, vars)
	c.running = append(c.running, process.Instance{PID: 1000 + c.nextPID})
	return process.Handle{PID: 1000 + c.nextPID}, nil
}

func (c *fakeController) Running(context.Context) ([]process.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]process.Instance(nil), c.running...), nil
}

type memSink struct {
	mu     sync.Mutex
	events []history.Event
	err    error
}

func (m *memSink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

type harness struct {
	o    *Orchestrator
	j    *journal
	f    *fakeFetcher
	i    *fakeInstaller
	c    *fakeController
	sink *memSink
	exe  string
}

func newHarness(t *testing.T, desc manifest.Descriptor, opts ...Option) *harness {
	t.Helper()
	j := &journal{}
	h := &harness{
		j:    j,
		f:    &fakeFetcher{j: j, desc: desc},
		i:    &fakeInstaller{j: j},
		c:    &fakeController{j: j},
		sink: &memSink{},
		exe:  filepath.Join(t.TempDir(), "app", "server"),
	}
	opts = append([]Option{WithHistory(h.sink)}, opts...)
	h.o = New(Config{Executable: h.exe}, h.f, h.i, h.c, opts...)
	return h
}

func descriptor(version string, env map[string]string) manifest.Descriptor {
	return manifest.Descriptor{
		Version:     version,
		Executable:  manifest.Executable{URL: "https://x/bin"},
		Environment: env,
	}
}
