// Package shellvisr is an embeddable supervisor for framework shells:
// long-lived background OS processes spawned on behalf of a request-driven
// API, tracked across restarts of the supervising program itself.
package shellvisr

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/shellvisr/internal/config"
	"github.com/loykin/shellvisr/internal/history"
	"github.com/loykin/shellvisr/internal/manager"
	"github.com/loykin/shellvisr/internal/metrics"
	iapi "github.com/loykin/shellvisr/internal/server"
	"github.com/loykin/shellvisr/internal/shell"
)

// Re-export the domain types so embedders need one import path. Aliases,
// so conversions are zero-cost.

type Record = shell.Record

type Status = shell.Status

const (
	StatusPending = shell.StatusPending
	StatusRunning = shell.StatusRunning
	StatusExited  = shell.StatusExited
)

type SpawnOptions = shell.SpawnOptions

type Config = manager.Config

type Payload = manager.Payload

type DescribeOptions = manager.DescribeOptions

type Aggregate = manager.Aggregate

type HistorySink = history.Sink

// Stable error kinds; classify with errors.Is.
var (
	ErrInvalidArgument  = shell.ErrInvalidArgument
	ErrCapacityExceeded = shell.ErrCapacityExceeded
	ErrNotFound         = shell.ErrNotFound
	ErrLaunchFailed     = shell.ErrLaunchFailed
	ErrSandboxViolation = shell.ErrSandboxViolation
)

// Manager is a thin facade over the internal supervisor, providing a
// stable public API for embedding.
type Manager struct{ inner *manager.Manager }

// New constructs a Manager: it opens the record store under c.BaseDir,
// persists the run identity, and adopts or reconciles every persisted
// shell before returning.
func New(c Config) (*Manager, error) {
	inner, err := manager.New(c)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: inner}, nil
}

func (m *Manager) RunID() string       { return m.inner.RunID() }
func (m *Manager) BaseDir() string     { return m.inner.BaseDir() }
func (m *Manager) SandboxRoot() string { return m.inner.SandboxRoot() }

func (m *Manager) SetHistorySinks(sinks ...HistorySink) { m.inner.SetHistorySinks(sinks...) }

func (m *Manager) Spawn(opts SpawnOptions) (*Record, error) { return m.inner.Spawn(opts) }
func (m *Manager) SpawnInteractive(opts SpawnOptions) (*Record, error) {
	return m.inner.SpawnInteractive(opts)
}
func (m *Manager) List(label string) ([]*Record, error)  { return m.inner.List(label) }
func (m *Manager) Get(id string) (*Record, bool, error)  { return m.inner.Get(id) }
func (m *Manager) Terminate(id string, force bool, timeout time.Duration) (*Record, error) {
	return m.inner.Terminate(id, force, timeout)
}
func (m *Manager) Restart(id string) (*Record, error)    { return m.inner.Restart(id) }
func (m *Manager) Remove(id string, force bool) error    { return m.inner.Remove(id, force) }
func (m *Manager) Describe(r *Record, opts DescribeOptions) Payload {
	return m.inner.Describe(r, opts)
}
func (m *Manager) Stats() (Aggregate, error) { return m.inner.Stats() }

// PTY operations, valid only for interactive shells started by this
// process instance.

func (m *Manager) Write(id string, data []byte) error       { return m.inner.Write(id, data) }
func (m *Manager) Subscribe(id string) (chan []byte, error) { return m.inner.Subscribe(id) }
func (m *Manager) Unsubscribe(id string, ch chan []byte)    { m.inner.Unsubscribe(id, ch) }
func (m *Manager) Resize(id string, cols, rows uint16) error {
	return m.inner.Resize(id, cols, rows)
}

// Close stops the PTY readers and history sinks. Shell processes keep
// running; a later Manager over the same base directory adopts them.
func (m *Manager) Close() { m.inner.Close() }

// StartResourceCollector periodically feeds the per-shell Prometheus
// gauges from the running shells. Call RegisterMetrics first; stop the
// returned collector on shutdown.
func (m *Manager) StartResourceCollector(interval time.Duration) *metrics.Collector {
	c := metrics.NewCollector(interval, func() []metrics.Target {
		records, err := m.inner.List("")
		if err != nil {
			return nil
		}
		targets := make([]metrics.Target, 0, len(records))
		for _, r := range records {
			if r.Status == StatusRunning {
				targets = append(targets, metrics.Target{ID: r.ID, Label: r.Label, PID: r.PID})
			}
		}
		return targets
	})
	c.Start()
	return c
}

// LoadConfig reads a TOML configuration file (see internal/config for the
// schema).
func LoadConfig(path string) (*cfg.Config, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the supervisor API. An
// empty apiKey leaves mutating routes open.
func NewHTTPServer(addr, basePath, apiKey string, m *Manager) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, apiKey, m.inner)
}

// NewRouter returns an embeddable router for hosts that already run their
// own HTTP server.
func NewRouter(m *Manager, basePath, apiKey string) *iapi.Router {
	return iapi.NewRouter(m.inner, basePath, apiKey)
}

// Metrics helpers.

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer serves /metrics from the default registry on addr.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
