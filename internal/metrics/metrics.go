package metrics

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relaunchr"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	updateRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "runs_total",
			Help:      "Finished orchestration runs by outcome.",
		}, []string{"outcome"},
	)
	updateRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "rejected_total",
			Help:      "Invocations rejected because a run was already in progress.",
		},
	)
	updateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "run_duration_seconds",
			Help:      "Wall time of orchestration runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
		},
	)
	updateBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "busy",
			Help:      "1 while an orchestration run holds the single-flight guard.",
		},
	)
	artifactDownloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artifact",
			Name:      "downloads_total",
			Help:      "Completed artifact downloads.",
		},
	)
	artifactBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artifact",
			Name:      "download_bytes_total",
			Help:      "Bytes written by completed artifact downloads.",
		},
	)
	processStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Successful launches of the managed process.",
		},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Stop attempts by result (stopped, not_running, error).",
		}, []string{"result"},
	)
	processInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "running_instances",
			Help:      "Running instances of the managed executable at the last status query.",
		},
	)
	processRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "resident_memory_bytes",
			Help:      "Summed RSS of the managed instances at the last status query.",
		},
	)
	installedVersion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "installed_version_info",
			Help:      "Version recorded in the local state file (value is always 1).",
		}, []string{"version"},
	)

	versionMu   sync.Mutex
	lastVersion string
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		updateRuns, updateRejected, updateDuration, updateBusy,
		artifactDownloads, artifactBytes,
		processStarts, processStops, processInstances, processRSS,
		installedVersion,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// already registered is fine when the default registry is reused
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveRun(outcome string, seconds float64) {
	if regOK.Load() {
		updateRuns.WithLabelValues(outcome).Inc()
		updateDuration.Observe(seconds)
	}
}

func IncRejected() {
	if regOK.Load() {
		updateRejected.Inc()
	}
}

func SetBusy(busy bool) {
	if regOK.Load() {
		v := 0.0
		if busy {
			v = 1
		}
		updateBusy.Set(v)
	}
}

func AddDownload(bytes int64) {
	if regOK.Load() {
		artifactDownloads.Inc()
		if bytes > 0 {
			artifactBytes.Add(float64(bytes))
		}
	}
}

func IncStart() {
	if regOK.Load() {
		processStarts.Inc()
	}
}

func IncStop(result string) {
	if regOK.Load() {
		processStops.WithLabelValues(result).Inc()
	}
}

func SetInstances(n int, rssBytes uint64) {
	if regOK.Load() {
		processInstances.Set(float64(n))
		processRSS.Set(float64(rssBytes))
	}
}

// SetInstalledVersion moves the info gauge to v, dropping the previous label.
func SetInstalledVersion(v string) {
	if !regOK.Load() || v == "" {
		return
	}
	versionMu.Lock()
	defer versionMu.Unlock()
	if lastVersion != "" && lastVersion != v {
		installedVersion.DeleteLabelValues(lastVersion)
	}
	installedVersion.WithLabelValues(v).Set(1)
	lastVersion = v
}
