package manager

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/shellvisr/internal/shell"
)

func newTestManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		BaseDir:     t.TempDir(),
		SandboxRoot: t.TempDir(),
		MaxShells:   DefaultMaxShells,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSpawnListGet(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "5"}, Label: "dl"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if r.Status != shell.StatusRunning || r.PID <= 0 {
		t.Fatalf("record after spawn: status=%s pid=%d", r.Status, r.PID)
	}

	list, err := m.List("")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != r.ID {
		t.Fatalf("list = %+v, want exactly the spawned shell", list)
	}

	got, ok, err := m.Get(r.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != shell.StatusRunning {
		t.Fatalf("status = %s, want running", got.Status)
	}

	if _, err := m.Terminate(r.ID, true, 0); err != nil {
		t.Fatalf("terminate: %v", err)
	}
}

func TestListLabelFilter(t *testing.T) {
	m := newTestManager(t, nil)
	a, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "5"}, Label: "a"})
	if err != nil {
		t.Fatalf("spawn a: %v", err)
	}
	if _, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "5"}, Label: "b"}); err != nil {
		t.Fatalf("spawn b: %v", err)
	}
	list, err := m.List("a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("label filter returned %d records", len(list))
	}
}

func TestSweepObservesSelfExit(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sh", "-c", "exit 0"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		got, ok, _ := m.Get(r.ID)
		return ok && got.Status == shell.StatusExited
	})
	got, _, _ := m.Get(r.ID)
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Fatalf("exit_code = %v, want 0", got.ExitCode)
	}
	if got.PID != 0 {
		t.Fatalf("pid = %d, want cleared", got.PID)
	}
}

func TestSweepObservesNonzeroExit(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"false"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		got, ok, _ := m.Get(r.ID)
		return ok && got.Status == shell.StatusExited
	})
	got, _, _ := m.Get(r.ID)
	if got.ExitCode == nil || *got.ExitCode == 0 {
		t.Fatalf("exit_code = %v, want nonzero", got.ExitCode)
	}
}

func TestTerminateForce(t *testing.T) {
	m := newTestManager(t, nil)
	// Ignores SIGTERM; only SIGKILL can take it down.
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sh", "-c", "trap '' TERM; sleep 60"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	got, err := m.Terminate(r.ID, true, 0)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if got.Status != shell.StatusExited || got.PID != 0 {
		t.Fatalf("after force terminate: status=%s pid=%d", got.Status, got.PID)
	}
	if got.ExitCode == nil || *got.ExitCode >= 0 {
		t.Fatalf("exit_code = %v, want negative (killed by signal)", got.ExitCode)
	}
}

func TestTerminateGracefulEscalates(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sh", "-c", "trap '' TERM; sleep 60"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	start := time.Now()
	got, err := m.Terminate(r.ID, false, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if got.Status != shell.StatusExited {
		t.Fatalf("status = %s, want exited", got.Status)
	}
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Fatalf("terminate returned after %v, should have waited the grace window", elapsed)
	}
}

func TestTerminateGracefulStopsCleanly(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "60"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	got, err := m.Terminate(r.ID, false, 5*time.Second)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if got.Status != shell.StatusExited {
		t.Fatalf("status = %s, want exited", got.Status)
	}
}

func TestTerminateUnknownID(t *testing.T) {
	m := newTestManager(t, nil)
	if _, err := m.Terminate("fs_0_nope", false, 0); !errors.Is(err, shell.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRestartPreservesIdentity(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "30"}, Label: "svc"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	oldPID := r.PID

	got, err := m.Restart(r.ID)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got.ID != r.ID || got.Label != "svc" || got.UsesPTY {
		t.Fatalf("restart changed identity: %+v", got)
	}
	if got.PID == oldPID || got.PID <= 0 {
		t.Fatalf("pid = %d (old %d), want a fresh pid", got.PID, oldPID)
	}
	if got.ExitCode != nil {
		t.Fatalf("exit_code = %v, want nil after restart", got.ExitCode)
	}
	if got.Status != shell.StatusRunning {
		t.Fatalf("status = %s, want running", got.Status)
	}
	if _, err := m.Terminate(r.ID, true, 0); err != nil {
		t.Fatalf("cleanup terminate: %v", err)
	}
}

func TestRemoveDeletesEverything(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "30"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := m.Remove(r.ID, true); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := m.Get(r.ID); ok {
		t.Fatal("record still present after remove")
	}
	for _, p := range []string{r.StdoutLog, r.StderrLog} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("log %s still present after remove", p)
		}
	}
	// Removing twice is NotFound, not a silent no-op.
	if err := m.Remove(r.ID, true); !errors.Is(err, shell.ErrNotFound) {
		t.Fatalf("second remove err = %v, want ErrNotFound", err)
	}
}

func TestCapacityExceeded(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.MaxShells = 1 })
	if _, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "30"}}); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	_, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "30"}})
	if !errors.Is(err, shell.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	// The failed spawn must leave no record behind.
	list, _ := m.List("")
	if len(list) != 1 {
		t.Fatalf("%d records persisted, want 1", len(list))
	}
}

func TestSpawnValidation(t *testing.T) {
	m := newTestManager(t, nil)
	if _, err := m.Spawn(shell.SpawnOptions{}); !errors.Is(err, shell.ErrInvalidArgument) {
		t.Fatalf("empty command err = %v", err)
	}
	_, err := m.Spawn(shell.SpawnOptions{
		Command: []string{"sleep", "1"},
		Env:     map[string]string{"SHELLVISR_RUN_ID": "spoof"},
	})
	if !errors.Is(err, shell.ErrInvalidArgument) {
		t.Fatalf("reserved env err = %v", err)
	}
	_, err = m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "1"}, Cwd: "../../outside"})
	if !errors.Is(err, shell.ErrSandboxViolation) {
		t.Fatalf("sandbox err = %v", err)
	}
}

func TestSpawnLaunchFailure(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.Spawn(shell.SpawnOptions{Command: []string{"/definitely/not/a/binary"}})
	if !errors.Is(err, shell.ErrLaunchFailed) {
		t.Fatalf("err = %v, want ErrLaunchFailed", err)
	}
	list, _ := m.List("")
	if len(list) != 0 {
		t.Fatalf("%d records persisted after launch failure, want 0", len(list))
	}
}

func TestRunIDFile(t *testing.T) {
	base := t.TempDir()
	m := newTestManager(t, func(c *Config) {
		c.BaseDir = base
		c.RunID = "run_1_testtest"
	})
	b, err := os.ReadFile(filepath.Join(base, runIDFileName))
	if err != nil {
		t.Fatalf("read run_id: %v", err)
	}
	if strings.TrimSpace(string(b)) != m.RunID() {
		t.Fatalf("run_id file = %q, want %q", b, m.RunID())
	}
}
