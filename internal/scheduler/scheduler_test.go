package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/relaunchr/internal/manifest"
	"github.com/loykin/relaunchr/internal/updater"
)

type scriptedRunner struct {
	mu    sync.Mutex
	errs  []error // returned in order; nil once exhausted
	calls int
}

func (r *scriptedRunner) Run(context.Context, bool) (updater.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.errs) == 0 {
		return updater.Run{Outcome: updater.OutcomeUpToDate}, nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return updater.Run{}, err
}

func (r *scriptedRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestParseEvery(t *testing.T) {
	d, err := ParseEvery("@every 100ms")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, d)

	d, err = ParseEvery("1h")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	d, err = ParseEvery("")
	require.NoError(t, err)
	assert.Zero(t, d)

	for _, bad := range []string{"* * * * *", "@daily", "@every nope", "@every -1s", "0s"} {
		_, err := ParseEvery(bad)
		assert.Error(t, err, bad)
	}
}

func TestCheck_RetriesTransientFailures(t *testing.T) {
	r := &scriptedRunner{errs: []error{
		fmt.Errorf("fetch: %w", manifest.ErrNetwork),
		&manifest.RemoteError{StatusCode: http.StatusServiceUnavailable},
	}}
	s, err := New(r, Config{RetryInitial: time.Millisecond, RetryMaxElapsed: time.Second}, nil)
	require.NoError(t, err)

	s.Check(context.Background())
	assert.Equal(t, 3, r.count())
}

func TestCheck_PermanentFailureIsNotRetried(t *testing.T) {
	r := &scriptedRunner{errs: []error{&manifest.RemoteError{StatusCode: http.StatusUnauthorized}}}
	s, err := New(r, Config{RetryInitial: time.Millisecond, RetryMaxElapsed: time.Second}, nil)
	require.NoError(t, err)

	s.Check(context.Background())
	assert.Equal(t, 1, r.count())
}

func TestCheck_BusyCountsAsDone(t *testing.T) {
	r := &scriptedRunner{errs: []error{updater.ErrAlreadyInProgress}}
	s, err := New(r, Config{RetryInitial: time.Millisecond}, nil)
	require.NoError(t, err)

	s.Check(context.Background())
	assert.Equal(t, 1, r.count())
}

func TestCheck_RetryDisabled(t *testing.T) {
	r := &scriptedRunner{errs: []error{manifest.ErrNetwork}}
	s, err := New(r, Config{RetryMaxElapsed: -1}, nil)
	require.NoError(t, err)

	s.Check(context.Background())
	assert.Equal(t, 1, r.count())
}

func TestScheduler_StartupAndPeriodic(t *testing.T) {
	r := &scriptedRunner{}
	s, err := New(r, Config{OnStartup: true, Every: "@every 20ms"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()), "second start is rejected")

	require.Eventually(t, func() bool { return r.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	n := r.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, r.count(), "no checks after Stop")
}

func TestScheduler_StartupOnly(t *testing.T) {
	r := &scriptedRunner{}
	s, err := New(r, Config{OnStartup: true}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	assert.Equal(t, 1, r.count())
}

func TestScheduler_DisabledIsNoop(t *testing.T) {
	r := &scriptedRunner{}
	s, err := New(r, Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	assert.Zero(t, r.count())
	assert.Zero(t, s.Period())
}

func TestScheduler_StopInterruptsRetry(t *testing.T) {
	errs := make([]error, 100)
	for i := range errs {
		errs[i] = errors.Join(manifest.ErrNetwork)
	}
	r := &scriptedRunner{errs: errs}
	s, err := New(r, Config{OnStartup: true, RetryInitial: time.Hour, RetryMaxElapsed: 2 * time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return r.count() >= 1 }, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() { s.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt the retry wait")
	}
	assert.Equal(t, 1, r.count())
}
