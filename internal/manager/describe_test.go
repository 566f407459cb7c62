package manager

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/loykin/shellvisr/internal/shell"
)

func TestDescribeSanitizesEnv(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{
		Command: []string{"sleep", "30"},
		Env:     map[string]string{"API_TOKEN": "s3cret-value", "MODE": "fast"},
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _, _ = m.Terminate(r.ID, true, 0) }()

	p := m.Describe(r, DescribeOptions{})
	if len(p.EnvKeys) != 2 || p.EnvKeys[0] != "API_TOKEN" || p.EnvKeys[1] != "MODE" {
		t.Fatalf("env_keys = %v, want sorted key names", p.EnvKeys)
	}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "s3cret-value") {
		t.Fatal("payload leaked an env value")
	}
	if !p.Stats.Alive {
		t.Fatal("stats.alive = false for a running shell")
	}
	if p.Stats.UptimeSec < 0 {
		t.Fatalf("uptime = %v", p.Stats.UptimeSec)
	}
}

func TestDescribeLogs(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sh", "-c", "echo out-line; echo err-line 1>&2; sleep 30"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _, _ = m.Terminate(r.ID, true, 0) }()

	waitFor(t, 5*time.Second, func() bool {
		p := m.Describe(r, DescribeOptions{IncludeLogs: true, TailLines: 5})
		return p.Logs != nil &&
			strings.Contains(p.Logs.StdoutTail, "out-line") &&
			strings.Contains(p.Logs.StderrTail, "err-line")
	})

	// Without IncludeLogs the payload carries no tails at all.
	if p := m.Describe(r, DescribeOptions{}); p.Logs != nil {
		t.Fatal("logs present without IncludeLogs")
	}
}

func TestStatsAggregate(t *testing.T) {
	m := newTestManager(t, nil)
	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "30"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _, _ = m.Terminate(r.ID, true, 0) }()

	agg, err := m.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if agg.TotalShells != 1 || agg.Running != 1 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if len(agg.PIDs) != 1 || agg.PIDs[0] != r.PID {
		t.Fatalf("pids = %v, want [%d]", agg.PIDs, r.PID)
	}
	if agg.RunID != m.RunID() || agg.Prober == "" {
		t.Fatalf("identity fields missing: %+v", agg)
	}
}
