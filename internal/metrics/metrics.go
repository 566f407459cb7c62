// Package metrics exposes Prometheus collectors for the shell supervisor.
// Collectors are package-level and activated by Register; every helper is
// a no-op until then, so embedders who never wire metrics pay nothing.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/shellvisr/internal/probe"
)

var (
	regOK atomic.Bool

	spawnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "spawns_total",
			Help:      "Number of successful shell spawns.",
		}, []string{"label"},
	)
	terminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "terminations_total",
			Help:      "Number of explicit terminations (graceful or kill).",
		}, []string{"label"},
	)
	restartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "restarts_total",
			Help:      "Number of shell restarts.",
		}, []string{"label"},
	)
	removalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "removals_total",
			Help:      "Number of shell removals.",
		}, []string{"label"},
	)
	adoptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "adoptions_total",
			Help:      "Number of orphaned shells adopted at startup.",
		}, []string{"label"},
	)
	exitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "exits_total",
			Help:      "Number of observed shell exits (any cause).",
		}, []string{"label"},
	)
	runningShells = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "running",
			Help:      "Shells currently in running state.",
		},
	)

	shellCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "cpu_percent",
			Help:      "Sampled CPU usage per shell.",
		}, []string{"id", "label"},
	)
	shellMemoryRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "memory_rss_bytes",
			Help:      "Sampled resident memory per shell.",
		}, []string{"id", "label"},
	)
	shellThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "shellvisr",
			Subsystem: "shell",
			Name:      "threads",
			Help:      "Sampled thread count per shell.",
		}, []string{"id", "label"},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// AlreadyRegisteredError is tolerated so tests and embedders can share the
// default registry.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		spawnsTotal, terminationsTotal, restartsTotal, removalsTotal,
		adoptionsTotal, exitsTotal, runningShells,
		shellCPUPercent, shellMemoryRSS, shellThreads,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler serves the default gatherer; the caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

func IncSpawn(label string) {
	if regOK.Load() {
		spawnsTotal.WithLabelValues(label).Inc()
	}
}
func IncTerminate(label string) {
	if regOK.Load() {
		terminationsTotal.WithLabelValues(label).Inc()
	}
}
func IncRestart(label string) {
	if regOK.Load() {
		restartsTotal.WithLabelValues(label).Inc()
	}
}
func IncRemove(label string) {
	if regOK.Load() {
		removalsTotal.WithLabelValues(label).Inc()
	}
}
func IncAdopt(label string) {
	if regOK.Load() {
		adoptionsTotal.WithLabelValues(label).Inc()
	}
}
func IncExit(label string) {
	if regOK.Load() {
		exitsTotal.WithLabelValues(label).Inc()
	}
}
func SetRunningShells(n int) {
	if regOK.Load() {
		runningShells.Set(float64(n))
	}
}

// SetShellResources publishes a resource sample for one shell. Fields the
// prober could not measure leave their gauge untouched.
func SetShellResources(id, label string, s probe.Stats) {
	if !regOK.Load() {
		return
	}
	if s.CPUPercent != nil {
		shellCPUPercent.WithLabelValues(id, label).Set(*s.CPUPercent)
	}
	if s.MemoryRSS != nil {
		shellMemoryRSS.WithLabelValues(id, label).Set(float64(*s.MemoryRSS))
	}
	if s.NumThreads != nil {
		shellThreads.WithLabelValues(id, label).Set(float64(*s.NumThreads))
	}
}

// ClearShell drops the per-shell gauges once a shell exits or is removed,
// so dead ids do not linger in scrapes.
func ClearShell(id string) {
	if !regOK.Load() {
		return
	}
	for _, g := range []*prometheus.GaugeVec{shellCPUPercent, shellMemoryRSS, shellThreads} {
		g.DeletePartialMatch(prometheus.Labels{"id": id})
	}
}
