// Package shell holds the per-shell primitives of the supervisor: the
// persisted record, the file-backed store, the launcher and the PTY state.
package shell

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

// Record is the persisted description of one framework shell. Timestamps
// are unix seconds; ExitCode is nil until an exit status was observed and
// negative when the process died from signal N (-N).
type Record struct {
	ID            string            `json:"id"`
	Command       []string          `json:"command"`
	Label         string            `json:"label,omitempty"`
	Cwd           string            `json:"cwd"`
	EnvOverrides  map[string]string `json:"env_overrides,omitempty"`
	PID           int               `json:"pid"`
	Status        Status            `json:"status"`
	CreatedAt     float64           `json:"created_at"`
	UpdatedAt     float64           `json:"updated_at"`
	Autostart     bool              `json:"autostart"`
	StdoutLog     string            `json:"stdout_log"`
	StderrLog     string            `json:"stderr_log"`
	ExitCode      *int              `json:"exit_code"`
	RunID         string            `json:"run_id,omitempty"`
	LauncherPID   int               `json:"launcher_pid,omitempty"`
	Adopted       bool              `json:"adopted"`
	UsesPTY       bool              `json:"uses_pty"`
	ProcStartUnix int64             `json:"proc_start_unix,omitempty"`
}

// UnixNow returns the current time as unix seconds with sub-second
// precision, the unit every Record timestamp uses.
func UnixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func (r *Record) Touch() { r.UpdatedAt = UnixNow() }

// Clone returns a deep copy so callers can hand records across API
// boundaries without aliasing manager-owned state.
func (r *Record) Clone() *Record {
	c := *r
	c.Command = append([]string(nil), r.Command...)
	if r.EnvOverrides != nil {
		c.EnvOverrides = make(map[string]string, len(r.EnvOverrides))
		for k, v := range r.EnvOverrides {
			c.EnvOverrides[k] = v
		}
	}
	if r.ExitCode != nil {
		code := *r.ExitCode
		c.ExitCode = &code
	}
	return &c
}
