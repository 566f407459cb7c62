package client

// SpawnRequest creates a shell. PTY selects the interactive mode; Cols and
// Rows apply only then.
type SpawnRequest struct {
	Command   []string          `json:"command"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Label     string            `json:"label,omitempty"`
	Autostart bool              `json:"autostart,omitempty"`
	PTY       bool              `json:"pty,omitempty"`
	Cols      uint16            `json:"cols,omitempty"`
	Rows      uint16            `json:"rows,omitempty"`
}

// Shell is the server's sanitized projection of one shell record. Env
// override values are never transmitted, only their key names.
type Shell struct {
	ID          string     `json:"id"`
	Command     []string   `json:"command"`
	Label       string     `json:"label,omitempty"`
	Cwd         string     `json:"cwd"`
	EnvKeys     []string   `json:"env_keys"`
	PID         int        `json:"pid"`
	Status      string     `json:"status"`
	CreatedAt   float64    `json:"created_at"`
	UpdatedAt   float64    `json:"updated_at"`
	Autostart   bool       `json:"autostart"`
	StdoutLog   string     `json:"stdout_log"`
	StderrLog   string     `json:"stderr_log"`
	ExitCode    *int       `json:"exit_code"`
	RunID       string     `json:"run_id,omitempty"`
	LauncherPID int        `json:"launcher_pid,omitempty"`
	Adopted     bool       `json:"adopted"`
	UsesPTY     bool       `json:"uses_pty"`
	Stats       ShellStats `json:"stats"`
	Logs        *LogTails  `json:"logs,omitempty"`
}

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

// Aggregate mirrors the server's supervisor-wide statistics.
type Aggregate struct {
	RunID          string   `json:"run_id"`
	LauncherPID    int      `json:"launcher_pid"`
	StartedAtUnix  float64  `json:"started_at"`
	UptimeSec      float64  `json:"uptime_sec"`
	TotalShells    int      `json:"total_shells"`
	Running        int      `json:"running"`
	Adopted        int      `json:"adopted"`
	PIDs           []int    `json:"pids"`
	TotalCPU       *float64 `json:"total_cpu_percent,omitempty"`
	TotalMemoryRSS *uint64  `json:"total_memory_rss,omitempty"`
	Prober         string   `json:"prober"`
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return e.Kind + ": " + e.Message
}
