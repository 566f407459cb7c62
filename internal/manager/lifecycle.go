package manager

import (
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/loykin/shellvisr/internal/history"
	"github.com/loykin/shellvisr/internal/metrics"
	"github.com/loykin/shellvisr/internal/shell"
)

// Terminate stops the shell with a two-phase escalation: SIGTERM, a
// liveness-polled wait bounded by timeout, then SIGKILL. force skips
// straight to SIGKILL. A zero timeout uses the configured grace timeout.
// The graceful path blocks the caller for up to timeout.
func (m *Manager) Terminate(id string, force bool, timeout time.Duration) (*shell.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.terminateLocked(id, force, timeout)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

func (m *Manager) terminateLocked(id string, force bool, timeout time.Duration) (*shell.Record, error) {
	r, ok, err := m.store.Load(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: shell %s", shell.ErrNotFound, id)
	}
	if timeout <= 0 {
		timeout = m.graceTimeout
	}

	// Already gone: reap whatever is left and record the exit.
	if !recordAlive(r) {
		if r.Status == shell.StatusRunning {
			m.markExitedLocked(r)
		} else {
			m.dropPTYLocked(r.ID)
		}
		return r, nil
	}

	pid := r.PID
	if force {
		shell.SignalGroup(pid, syscall.SIGKILL)
	} else {
		shell.SignalGroup(pid, syscall.SIGTERM)
		if !waitDead(r, timeout) {
			slog.Info("graceful stop timed out, escalating", "id", id, "pid", pid)
			shell.SignalGroup(pid, syscall.SIGKILL)
		}
	}
	// SIGKILL cannot be ignored; the residual wait only covers kernel
	// teardown latency.
	waitDead(r, killConfirmWindow)

	m.markExitedLocked(r)
	metrics.IncTerminate(r.Label)
	return r, nil
}

// waitDead polls liveness until r's process is gone or the window closes.
func waitDead(r *shell.Record, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if !recordAlive(r) {
			return true
		}
		time.Sleep(livenessPollInterval)
	}
	return !recordAlive(r)
}

// Restart force-terminates the shell and relaunches the same command in
// the same mode (headless or PTY). The id, command, label and uses_pty are
// preserved; timestamps reset, exit code cleared, a fresh pid assigned.
func (m *Manager) Restart(id string) (*shell.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.terminateLocked(id, true, 0)
	if err != nil {
		return nil, err
	}

	now := shell.UnixNow()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.ExitCode = nil
	r.Status = shell.StatusPending
	r.RunID = m.runID
	r.LauncherPID = m.launcherPID
	r.Adopted = false
	r.ProcStartUnix = 0
	if err := m.store.Save(r); err != nil {
		return nil, err
	}

	if r.UsesPTY {
		p, err := m.launcher.StartPTY(r, 0, 0)
		if err != nil {
			return nil, err
		}
		m.ptys[r.ID] = p
	} else {
		if err := m.launcher.StartHeadless(r); err != nil {
			return nil, err
		}
	}
	slog.Info("shell restarted", "id", r.ID, "pid", r.PID)
	metrics.IncRestart(r.Label)
	m.emit(history.EventRestarted, r, r.PID)
	return r.Clone(), nil
}

// Remove terminates the shell if it is still alive (force selects the
// termination mode), tears down PTY state, and deletes the metadata
// directory plus both log files. An unknown id is NotFound, never a
// silent no-op.
func (m *Manager) Remove(id string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok, err := m.store.Load(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: shell %s", shell.ErrNotFound, id)
	}
	if recordAlive(r) {
		if r, err = m.terminateLocked(id, force, 0); err != nil {
			return err
		}
	}
	m.dropPTYLocked(id)
	if err := m.store.Delete(id); err != nil {
		return err
	}
	slog.Info("shell removed", "id", id)
	metrics.IncRemove(r.Label)
	metrics.ClearShell(id)
	m.emit(history.EventRemoved, r, 0)
	return nil
}
