package manager

import (
	"sort"
	"time"

	"github.com/loykin/shellvisr/internal/metrics"
	"github.com/loykin/shellvisr/internal/shell"
)

// Payload is the sanitized, read-only projection of a record: the only
// representation that may cross a process or network boundary. Environment
// override values never appear in it, only their sorted key names.
type Payload struct {
	ID          string   `json:"id"`
	Command     []string `json:"command"`
	Label       string   `json:"label,omitempty"`
	Cwd         string   `json:"cwd"`
	EnvKeys     []string `json:"env_keys"`
	PID         int      `json:"pid"`
	Status      string   `json:"status"`
	CreatedAt   float64  `json:"created_at"`
	UpdatedAt   float64  `json:"updated_at"`
	Autostart   bool     `json:"autostart"`
	StdoutLog   string   `json:"stdout_log"`
	StderrLog   string   `json:"stderr_log"`
	ExitCode    *int     `json:"exit_code"`
	RunID       string   `json:"run_id,omitempty"`
	LauncherPID int      `json:"launcher_pid,omitempty"`
	Adopted     bool     `json:"adopted"`
	UsesPTY     bool     `json:"uses_pty"`

	Stats ShellStats `json:"stats"`
	Logs  *LogTails  `json:"logs,omitempty"`
}

// ShellStats is the live resource view of one shell. Pointer fields stay
// nil when the prober could not measure them; unknown is never reported as
// zero.
type ShellStats struct {
	Alive      bool     `json:"alive"`
	UptimeSec  float64  `json:"uptime_sec"`
	CPUPercent *float64 `json:"cpu_percent,omitempty"`
	MemoryRSS  *uint64  `json:"memory_rss,omitempty"`
	NumThreads *int32   `json:"num_threads,omitempty"`
}

type LogTails struct {
	StdoutTail string `json:"stdout_tail"`
	StderrTail string `json:"stderr_tail"`
}

type DescribeOptions struct {
	IncludeLogs bool
	TailLines   int
}

// Describe builds the payload for r: sanitized record fields, a fresh
// resource sample, and optionally bounded log tails.
func (m *Manager) Describe(r *shell.Record, opts DescribeOptions) Payload {
	p := Payload{
		ID:          r.ID,
		Command:     append([]string(nil), r.Command...),
		Label:       r.Label,
		Cwd:         r.Cwd,
		EnvKeys:     envKeys(r.EnvOverrides),
		PID:         r.PID,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Autostart:   r.Autostart,
		StdoutLog:   r.StdoutLog,
		StderrLog:   r.StderrLog,
		RunID:       r.RunID,
		LauncherPID: r.LauncherPID,
		Adopted:     r.Adopted,
		UsesPTY:     r.UsesPTY,
	}
	if r.ExitCode != nil {
		c := *r.ExitCode
		p.ExitCode = &c
	}
	p.Stats = m.shellStats(r)
	if opts.IncludeLogs {
		p.Logs = &LogTails{
			StdoutTail: shell.Tail(r.StdoutLog, opts.TailLines),
			StderrTail: shell.Tail(r.StderrLog, opts.TailLines),
		}
	}
	return p
}

func envKeys(overrides map[string]string) []string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) shellStats(r *shell.Record) ShellStats {
	st := ShellStats{Alive: recordAlive(r)}
	if !st.Alive {
		return st
	}
	st.UptimeSec = shell.UnixNow() - r.CreatedAt
	sample := m.prober.Sample(r.PID)
	st.CPUPercent = sample.CPUPercent
	st.MemoryRSS = sample.MemoryRSS
	st.NumThreads = sample.NumThreads
	metrics.SetShellResources(r.ID, r.Label, sample)
	return st
}

// Aggregate is the supervisor-wide statistics view.
type Aggregate struct {
	RunID          string  `json:"run_id"`
	LauncherPID    int     `json:"launcher_pid"`
	StartedAtUnix  float64 `json:"started_at"`
	UptimeSec      float64 `json:"uptime_sec"`
	TotalShells    int     `json:"total_shells"`
	Running        int     `json:"running"`
	Adopted        int     `json:"adopted"`
	PIDs           []int   `json:"pids"`
	TotalCPU       *float64 `json:"total_cpu_percent,omitempty"`
	TotalMemoryRSS *uint64  `json:"total_memory_rss,omitempty"`
	Prober         string  `json:"prober"`
}

// Stats sweeps, then sums resource usage over every live shell with the
// same unknown-stays-absent strategy the per-shell view uses: the totals
// are nil unless at least one shell contributed a measured value.
func (m *Manager) Stats() (Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()

	agg := Aggregate{
		RunID:         m.runID,
		LauncherPID:   m.launcherPID,
		StartedAtUnix: float64(m.startedAt.UnixNano()) / float64(time.Second),
		UptimeSec:     time.Since(m.startedAt).Seconds(),
		Prober:        m.prober.Name(),
	}
	ids, err := m.store.IDs()
	if err != nil {
		return agg, err
	}
	for _, id := range ids {
		r, ok, err := m.store.Load(id)
		if err != nil || !ok {
			continue
		}
		agg.TotalShells++
		if r.Adopted {
			agg.Adopted++
		}
		if r.Status != shell.StatusRunning {
			continue
		}
		agg.Running++
		agg.PIDs = append(agg.PIDs, r.PID)
		sample := m.prober.Sample(r.PID)
		if sample.CPUPercent != nil {
			if agg.TotalCPU == nil {
				agg.TotalCPU = new(float64)
			}
			*agg.TotalCPU += *sample.CPUPercent
		}
		if sample.MemoryRSS != nil {
			if agg.TotalMemoryRSS == nil {
				agg.TotalMemoryRSS = new(uint64)
			}
			*agg.TotalMemoryRSS += *sample.MemoryRSS
		}
	}
	metrics.SetRunningShells(agg.Running)
	return agg, nil
}
