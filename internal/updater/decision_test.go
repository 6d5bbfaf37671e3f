package updater

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loykin/relaunchr/internal/installer"
	"github.com/loykin/relaunchr/internal/manifest"
	"github.com/loykin/relaunchr/internal/process"
	"github.com/loykin/relaunchr/internal/state"
)

func filepathDir(p string) string { return filepath.Dir(p) }

func TestNeedsUpdate(t *testing.T) {
	versions := []string{"0.0.0", "1.0.0", "1.0.1", "2.0.0-rc1", ""}
	for _, local := range versions {
		for _, remote := range versions {
			for _, force := range []bool{false, true} {
				for _, present := range []bool{false, true} {
					want := remote != local || !present || force
					assert.Equal(t, want, NeedsUpdate(force, local, remote, present),
						"force=%v local=%q remote=%q present=%v", force, local, remote, present)
				}
			}
		}
	}
	assert.True(t, NeedsUpdate(false, "1.0.0", "0.9.0", true), "a downgrade is still an update")
}

func TestChange(t *testing.T) {
	assert.Equal(t, "same", Change("1.0.0", "1.0.0"))
	assert.Equal(t, "upgrade", Change("0.0.0", "1.3.0"))
	assert.Equal(t, "downgrade", Change("2.0.0", "1.9.9"))
	assert.Equal(t, "changed", Change("1.0", "1.0.0"))
	assert.Equal(t, "changed", Change("build-41", "build-42"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{ErrAlreadyInProgress, KindAlreadyInProgress},
		{fmt.Errorf("fetch: %w", &manifest.RemoteError{StatusCode: http.StatusNotFound}), KindRemote},
		{fmt.Errorf("fetch: %w", manifest.ErrNetwork), KindNetwork},
		{fmt.Errorf("install: %w", installer.ErrDownload), KindNetwork},
		{fmt.Errorf("fetch: %w", manifest.ErrParse), KindParse},
		{fmt.Errorf("install: %w", installer.ErrIO), KindIO},
		{fmt.Errorf("record: %w", state.ErrWrite), KindIO},
		{fmt.Errorf("restart: %w", process.ErrLaunch), KindLaunch},
		{errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(manifest.ErrNetwork))
	assert.True(t, Retryable(&manifest.RemoteError{StatusCode: http.StatusBadGateway}))
	assert.True(t, Retryable(&manifest.RemoteError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, Retryable(&manifest.RemoteError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, Retryable(manifest.ErrParse))
	assert.False(t, Retryable(process.ErrLaunch))
}

func TestGuard(t *testing.T) {
	var g guard
	release, ok := g.TryAcquire()
	assert.True(t, ok)
	assert.True(t, g.Held())

	_, ok = g.TryAcquire()
	assert.False(t, ok)

	release()
	release() // idempotent
	assert.False(t, g.Held())

	r2, ok := g.TryAcquire()
	assert.True(t, ok)
	release() // a stale release must not free the new holder
	assert.True(t, g.Held())
	r2()
}

func TestGuard_Concurrent(t *testing.T) {
	var g guard
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryAcquire(); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, wins)
}
