package manager

import (
	"log/slog"

	"github.com/loykin/shellvisr/internal/history"
	"github.com/loykin/shellvisr/internal/metrics"
	"github.com/loykin/shellvisr/internal/shell"
)

// adopt reconciles every persisted record against OS reality once, during
// construction. Records whose process died while no supervisor was looking
// become exited; live processes stamped with a foreign (or missing) run
// identity are re-claimed by this run. The supervising program may be
// restarted by an external watchdog at any time; adoption is what lets a
// fresh instance keep managing the children of the previous one without
// killing or double-spawning them.
func (m *Manager) adopt() error {
	ids, err := m.store.IDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		r, ok, err := m.store.Load(id)
		if err != nil || !ok {
			continue
		}
		if r.Status != shell.StatusRunning {
			continue
		}
		if !recordAlive(r) {
			m.markExitedLocked(r)
			continue
		}
		if r.RunID == m.runID {
			continue
		}
		r.RunID = m.runID
		r.LauncherPID = m.launcherPID
		r.Adopted = true
		if r.ProcStartUnix == 0 {
			r.ProcStartUnix = shell.ProcStartUnix(r.PID)
		}
		r.Touch()
		if err := m.store.Save(r); err != nil {
			slog.Warn("persist adopted shell failed", "id", r.ID, "error", err)
			continue
		}
		slog.Info("shell adopted", "id", r.ID, "pid", r.PID)
		metrics.IncAdopt(r.Label)
		m.emit(history.EventAdopted, r, r.PID)
	}
	return nil
}
