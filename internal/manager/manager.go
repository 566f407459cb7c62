// Package manager ties the shell primitives together: it owns the record
// store, the launcher, the PTY map and the resource prober, and exposes the
// supervisor's public operations. One mutex serializes every mutating
// operation, so concurrent callers always observe whole records.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/shellvisr/internal/env"
	"github.com/loykin/shellvisr/internal/history"
	"github.com/loykin/shellvisr/internal/metrics"
	"github.com/loykin/shellvisr/internal/probe"
	"github.com/loykin/shellvisr/internal/shell"
)

const (
	// DefaultMaxShells caps concurrently running shells when the config
	// does not say otherwise.
	DefaultMaxShells = 5
	// DefaultGraceTimeout bounds the SIGTERM wait before escalation.
	DefaultGraceTimeout = 10 * time.Second

	livenessPollInterval = 100 * time.Millisecond
	// killConfirmWindow bounds the wait for a SIGKILLed process to
	// disappear from the process table.
	killConfirmWindow = 3 * time.Second

	runIDFileName = "run_id"
)

// Config describes one Manager instance. Zero values fall back to the
// defaults above; an empty RunID mints a fresh run identity.
type Config struct {
	// BaseDir holds the record store, log files and the run_id file.
	// Defaults to ~/.cache/shellvisr.
	BaseDir string
	// SandboxRoot constrains every shell's cwd. Defaults to the user's
	// home directory.
	SandboxRoot string
	MaxShells   int
	// GraceTimeout is the default SIGTERM wait for terminate calls that
	// pass no explicit timeout.
	GraceTimeout time.Duration
	RunID        string
	// GlobalEnv is extra "K=V" environment applied to every shell (with
	// ${VAR} expansion), below per-shell overrides.
	GlobalEnv []string
}

// DefaultBaseDir returns ~/.cache/shellvisr, the conventional location of
// the supervisor's state.
func DefaultBaseDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "shellvisr")
	}
	return filepath.Join(os.TempDir(), "shellvisr")
}

// Manager supervises framework shells: spawn, track, control, and adopt
// them across restarts of the supervising program.
type Manager struct {
	mu       sync.Mutex
	store    *shell.Store
	launcher *shell.Launcher
	prober   probe.Prober

	runID        string
	launcherPID  int
	startedAt    time.Time
	maxShells    int
	graceTimeout time.Duration

	// ptys holds in-memory PTY state for interactive shells started by
	// this instance. Never persisted, never reconstructed for adopted
	// shells.
	ptys map[string]*shell.PTY

	sinks  []history.Sink
	closed bool
}

// New builds a Manager over cfg's base directory, persists the current run
// identity and runs the adoption pass over every persisted record before
// returning.
func New(cfg Config) (*Manager, error) {
	base := cfg.BaseDir
	if base == "" {
		base = DefaultBaseDir()
	}
	base = shell.ExpandHome(base)
	st, err := shell.NewStore(base)
	if err != nil {
		return nil, err
	}
	runID := cfg.RunID
	if runID == "" {
		runID = shell.NewRunID()
	}
	genv := env.New()
	genv.SetAll(cfg.GlobalEnv)
	launcher, err := shell.NewLauncher(st, cfg.SandboxRoot, runID, genv)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		store:        st,
		launcher:     launcher,
		prober:       probe.New(),
		runID:        runID,
		launcherPID:  os.Getpid(),
		startedAt:    time.Now(),
		maxShells:    cfg.MaxShells,
		graceTimeout: cfg.GraceTimeout,
		ptys:         make(map[string]*shell.PTY),
	}
	if m.maxShells <= 0 {
		m.maxShells = DefaultMaxShells
	}
	if m.graceTimeout <= 0 {
		m.graceTimeout = DefaultGraceTimeout
	}
	if err := os.WriteFile(filepath.Join(base, runIDFileName), []byte(runID+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write run id: %w", err)
	}
	if err := m.adopt(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) RunID() string       { return m.runID }
func (m *Manager) BaseDir() string     { return m.store.Base() }
func (m *Manager) SandboxRoot() string { return m.launcher.SandboxRoot() }

// SetHistorySinks configures external lifecycle-event sinks. Delivery is
// fire-and-forget; a slow or failing sink never blocks an operation.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.mu.Lock()
	m.sinks = append([]history.Sink(nil), sinks...)
	m.mu.Unlock()
}

// emit sends a lifecycle event to every configured sink asynchronously.
// pid is the pid the shell had at the moment of the transition; for exits
// the record's own pid is already cleared.
func (m *Manager) emit(t history.EventType, r *shell.Record, pid int) {
	if len(m.sinks) == 0 {
		return
	}
	evt := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		ShellID:    r.ID,
		RunID:      r.RunID,
		Label:      r.Label,
		PID:        pid,
		Status:     string(r.Status),
		ExitCode:   r.ExitCode,
	}
	sinks := append([]history.Sink(nil), m.sinks...)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, s := range sinks {
			if err := s.Send(ctx, evt); err != nil {
				slog.Debug("history sink send failed", "type", evt.Type, "shell", evt.ShellID, "error", err)
			}
		}
	}()
}

// Spawn creates and starts a headless shell. The record is persisted only
// after the OS process exists; every failure before that leaves no trace.
func (m *Manager) Spawn(opts shell.SpawnOptions) (*shell.Record, error) {
	return m.spawn(opts, false)
}

// SpawnInteractive creates and starts a shell bound to a pseudo-terminal.
func (m *Manager) SpawnInteractive(opts shell.SpawnOptions) (*shell.Record, error) {
	return m.spawn(opts, true)
}

func (m *Manager) spawn(opts shell.SpawnOptions, interactive bool) (*shell.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()

	running, err := m.runningCountLocked()
	if err != nil {
		return nil, err
	}
	if running >= m.maxShells {
		return nil, fmt.Errorf("%w: %d shells already running (max %d)",
			shell.ErrCapacityExceeded, running, m.maxShells)
	}

	r, err := m.launcher.NewRecord(opts)
	if err != nil {
		return nil, err
	}
	r.UsesPTY = interactive
	if interactive {
		p, err := m.launcher.StartPTY(r, opts.Cols, opts.Rows)
		if err != nil {
			return nil, err
		}
		m.ptys[r.ID] = p
	} else {
		if err := m.launcher.StartHeadless(r); err != nil {
			return nil, err
		}
	}
	slog.Info("shell spawned", "id", r.ID, "pid", r.PID, "pty", interactive, "command", r.Command[0])
	metrics.IncSpawn(r.Label)
	m.emit(history.EventSpawned, r, r.PID)
	return r.Clone(), nil
}

// List returns every record, stale running states reconciled first. A
// non-empty label restricts the result to shells carrying that label.
func (m *Manager) List(label string) ([]*shell.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	ids, err := m.store.IDs()
	if err != nil {
		return nil, err
	}
	out := make([]*shell.Record, 0, len(ids))
	for _, id := range ids {
		r, ok, err := m.store.Load(id)
		if err != nil || !ok {
			continue
		}
		if label != "" && r.Label != label {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Get returns the record for id, or ok=false when it does not exist.
func (m *Manager) Get(id string) (*shell.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return m.store.Load(id)
}

// runningCountLocked counts shells whose persisted status is running.
func (m *Manager) runningCountLocked() (int, error) {
	ids, err := m.store.IDs()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		r, ok, err := m.store.Load(id)
		if err != nil || !ok {
			continue
		}
		if r.Status == shell.StatusRunning {
			n++
		}
	}
	return n, nil
}

// recordAlive is the single liveness predicate: the pid must exist, be no
// zombie, and still carry the start time recorded at launch (PID-reuse
// guard).
func recordAlive(r *shell.Record) bool {
	return r.PID > 0 && shell.Alive(r.PID) && shell.SameProcess(r.PID, r.ProcStartUnix)
}

// sweepLocked reconciles stale running records against OS liveness. It is
// the sole path converting running to exited for processes that died
// without an explicit terminate.
func (m *Manager) sweepLocked() {
	ids, err := m.store.IDs()
	if err != nil {
		return
	}
	for _, id := range ids {
		r, ok, err := m.store.Load(id)
		if err != nil || !ok {
			continue
		}
		if r.Status != shell.StatusRunning || recordAlive(r) {
			continue
		}
		m.markExitedLocked(r)
	}
}

// markExitedLocked reaps the exit status best-effort, clears the pid,
// persists the exited record, and tears down any PTY state. The exit code
// stays nil when the OS gives us nothing (adopted processes).
func (m *Manager) markExitedLocked(r *shell.Record) {
	pid := r.PID
	if code, ok := shell.Reap(pid); ok {
		c := code
		r.ExitCode = &c
	}
	r.PID = 0
	r.Status = shell.StatusExited
	r.Touch()
	if err := m.store.Save(r); err != nil {
		slog.Warn("persist exited shell failed", "id", r.ID, "error", err)
	}
	m.dropPTYLocked(r.ID)
	slog.Info("shell exited", "id", r.ID, "pid", pid, "exit_code", r.ExitCode)
	metrics.IncExit(r.Label)
	metrics.ClearShell(r.ID)
	m.emit(history.EventExited, r, pid)
}

// dropPTYLocked closes and forgets the PTY state for id, if any.
func (m *Manager) dropPTYLocked(id string) {
	if p, ok := m.ptys[id]; ok {
		delete(m.ptys, id)
		p.Close()
	}
}

// Close stops every PTY reader owned by this instance. The shell processes
// themselves keep running; a later Manager over the same base directory
// adopts them.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, p := range m.ptys {
		delete(m.ptys, id)
		p.Close()
	}
	for _, s := range m.sinks {
		_ = s.Close()
	}
}
