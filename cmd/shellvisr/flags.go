package main

import "time"

// ServeFlags configures the daemon command. Config-file values are the
// base; explicit flags win.
type ServeFlags struct {
	ConfigPath string
	Listen     string
	BaseDir    string
	Daemonize  bool
	PIDFile    string
	LogFile    string
}

// APIFlags are shared by every client command.
type APIFlags struct {
	URL     string
	Key     string
	Timeout time.Duration
}

// SpawnFlags configures the spawn command; the argv comes from positional
// arguments.
type SpawnFlags struct {
	Cwd       string
	Env       []string
	Label     string
	Autostart bool
	PTY       bool
	Cols      uint16
	Rows      uint16
}

// GetFlags configures the get command.
type GetFlags struct {
	Logs      bool
	TailLines int
}

// StopFlags configures stop.
type StopFlags struct {
	Force   bool
	Timeout time.Duration
}

// RemoveFlags configures remove.
type RemoveFlags struct {
	Force bool
}
