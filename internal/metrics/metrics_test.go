package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freshRegistry registers the package collectors with a new registry,
// bypassing the once-only gate so every test gets its own view.
func freshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	return reg
}

func TestRegisterIdempotent(t *testing.T) {
	reg := freshRegistry(t)
	require.NoError(t, Register(reg))

	ObserveRun("updated", 1.5)
	IncRejected()
	SetBusy(true)
	AddDownload(2048)
	IncStart()
	IncStop("stopped")
	SetInstances(1, 4096)
	SetInstalledVersion("1.0.0")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = len(mf.GetMetric()) > 0
	}
	for _, n := range []string{
		"relaunchr_update_runs_total",
		"relaunchr_update_rejected_total",
		"relaunchr_update_run_duration_seconds",
		"relaunchr_update_busy",
		"relaunchr_artifact_downloads_total",
		"relaunchr_artifact_download_bytes_total",
		"relaunchr_process_starts_total",
		"relaunchr_process_stops_total",
		"relaunchr_process_running_instances",
		"relaunchr_process_resident_memory_bytes",
		"relaunchr_installed_version_info",
	} {
		assert.True(t, names[n], "metric %s has samples", n)
	}
}

func TestCountersMove(t *testing.T) {
	freshRegistry(t)

	before := testutil.ToFloat64(updateRuns.WithLabelValues("failed"))
	ObserveRun("failed", 0.2)
	assert.Equal(t, before+1, testutil.ToFloat64(updateRuns.WithLabelValues("failed")))

	SetBusy(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(updateBusy))
	SetBusy(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(updateBusy))

	b := testutil.ToFloat64(artifactBytes)
	AddDownload(100)
	AddDownload(0)
	assert.Equal(t, b+100, testutil.ToFloat64(artifactBytes))
}

func TestInstalledVersionReplacesLabel(t *testing.T) {
	freshRegistry(t)
	SetInstalledVersion("1.0.0")
	SetInstalledVersion("1.1.0")
	assert.Equal(t, 1, testutil.CollectAndCount(installedVersion))
	assert.Equal(t, 1.0, testutil.ToFloat64(installedVersion.WithLabelValues("1.1.0")))
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	require.NoError(t, Register(prometheus.DefaultRegisterer))

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncStart()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(b), "relaunchr_process_starts_total"))
}

func TestConcurrentIncrements(t *testing.T) {
	reg := freshRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncStart()
			IncStop("not_running")
			SetInstalledVersion("2.0.0")
		}()
	}
	wg.Wait()
	_, err := reg.Gather()
	require.NoError(t, err)
}

func TestMetricsBeforeRegister(t *testing.T) {
	orig := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(orig)

	// no-ops, must not panic
	ObserveRun("updated", 1)
	IncRejected()
	SetBusy(true)
	AddDownload(1)
	IncStart()
	IncStop("x")
	SetInstances(1, 1)
	SetInstalledVersion("1")
}

type errorRegisterer struct{}

func (errorRegisterer) Register(prometheus.Collector) error  { return errors.New("test registration error") }
func (errorRegisterer) MustRegister(...prometheus.Collector) {}
func (errorRegisterer) Unregister(prometheus.Collector) bool { return false }

func TestRegisterError(t *testing.T) {
	orig := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(orig)

	err := Register(errorRegisterer{})
	require.Error(t, err)
	assert.Equal(t, "test registration error", err.Error())
	assert.False(t, regOK.Load())
}
