package shell

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/creack/pty"

	"github.com/loykin/shellvisr/internal/env"
)

// ReservedEnvPrefix guards the marker variables the launcher stamps into
// every child; callers may not override them.
const ReservedEnvPrefix = "SHELLVISR_"

// SpawnOptions carries everything a caller may specify when creating a
// shell. Cols/Rows apply to interactive spawns only; zero means the
// terminal default.
type SpawnOptions struct {
	Command   []string
	Cwd       string
	Env       map[string]string
	Label     string
	Autostart bool
	Cols      uint16
	Rows      uint16
}

// Launcher creates shell records and the OS processes behind them. Headless
// children write straight into their log files and are detached into their
// own session so they outlive the supervisor; interactive children get a
// pseudo-terminal whose master stays with the calling process.
type Launcher struct {
	store       *Store
	sandbox     string
	env         *env.Env
	runID       string
	launcherPID int
}

func NewLauncher(store *Store, sandboxRoot, runID string, genv *env.Env) (*Launcher, error) {
	root, err := resolveSandboxRoot(sandboxRoot)
	if err != nil {
		return nil, err
	}
	if genv == nil {
		genv = env.New()
	}
	return &Launcher{
		store:       store,
		sandbox:     root,
		env:         genv,
		runID:       runID,
		launcherPID: os.Getpid(),
	}, nil
}

func (l *Launcher) SandboxRoot() string { return l.sandbox }

func resolveSandboxRoot(root string) (string, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("sandbox root: %w", err)
		}
		root = home
	}
	root = ExpandHome(root)
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("sandbox root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return "", fmt.Errorf("sandbox root %q: %w", abs, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("sandbox root %q: %w", abs, err)
	}
	return resolved, nil
}

// ExpandHome rewrites a leading ~ to the current user's home directory.
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// NewRecord validates opts and builds a pending record with its id, log
// paths and run identity assigned. Nothing is persisted and no process is
// started yet.
func (l *Launcher) NewRecord(opts SpawnOptions) (*Record, error) {
	if len(opts.Command) == 0 || strings.TrimSpace(opts.Command[0]) == "" {
		return nil, fmt.Errorf("%w: command must be a non-empty argument vector", ErrInvalidArgument)
	}
	for k := range opts.Env {
		if k == "" {
			return nil, fmt.Errorf("%w: empty environment variable name", ErrInvalidArgument)
		}
		if strings.HasPrefix(k, ReservedEnvPrefix) {
			return nil, fmt.Errorf("%w: %s* variables are reserved", ErrInvalidArgument, ReservedEnvPrefix)
		}
	}
	cwd, err := l.resolveCwd(opts.Cwd)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cwd, 0o750); err != nil {
		return nil, fmt.Errorf("%w: cwd %q: %v", ErrInvalidArgument, cwd, err)
	}

	now := UnixNow()
	r := &Record{
		ID:          NewID(),
		Command:     append([]string(nil), opts.Command...),
		Label:       opts.Label,
		Cwd:         cwd,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Autostart:   opts.Autostart,
		RunID:       l.runID,
		LauncherPID: l.launcherPID,
	}
	if len(opts.Env) > 0 {
		r.EnvOverrides = make(map[string]string, len(opts.Env))
		for k, v := range opts.Env {
			r.EnvOverrides[k] = v
		}
	}
	r.StdoutLog, r.StderrLog = l.store.LogPaths(r.ID)
	return r, nil
}

// resolveCwd makes cwd absolute and confirms it stays under the sandbox
// root. The directory itself may not exist yet; the root is resolved for
// symlinks, the target only when present.
func (l *Launcher) resolveCwd(cwd string) (string, error) {
	if cwd == "" {
		return l.sandbox, nil
	}
	p := ExpandHome(cwd)
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.sandbox, p)
	}
	p = filepath.Clean(p)
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	rel, err := filepath.Rel(l.sandbox, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %q", ErrSandboxViolation, cwd, l.sandbox)
	}
	return p, nil
}

// environFor composes the child environment: OS base plus configured
// globals plus the record's overrides, then the supervisor markers, which
// always win.
func (l *Launcher) environFor(r *Record, interactive bool) []string {
	e := l.env.Merge(r.EnvOverrides)
	e = append(e,
		"SHELLVISR_SESSION_TYPE=framework",
		"SHELLVISR_SHELL_ID="+r.ID,
		"SHELLVISR_RUN_ID="+l.runID,
		"SHELLVISR_LAUNCHER_PID="+strconv.Itoa(l.launcherPID),
	)
	if interactive {
		e = append(e, "SHELLVISR_TTY=pty")
		if !hasEnvKey(e, "TERM") {
			e = append(e, "TERM=xterm-256color")
		}
	}
	return e
}

func hasEnvKey(environ []string, key string) bool {
	prefix := key + "="
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}
	return false
}

// StartHeadless launches r detached into its own session with stdout and
// stderr appended to the per-shell log files. The log descriptors are
// handed to the child directly, so logging keeps working after this
// process exits and the shell is later adopted.
func (l *Launcher) StartHeadless(r *Record) error {
	// #nosec G204 -- the argv vector is the caller's validated request
	cmd := exec.Command(r.Command[0], r.Command[1:]...)
	cmd.Dir = r.Cwd
	cmd.Env = l.environFor(r, false)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	stdin, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	defer func() { _ = stdin.Close() }()
	stdout, err := os.OpenFile(r.StdoutLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	defer func() { _ = stdout.Close() }()
	stderr, err := os.OpenFile(r.StderrLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	defer func() { _ = stderr.Close() }()
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	return l.markStarted(r, cmd)
}

// StartPTY launches r on a fresh pseudo-terminal and returns the PTY state
// owning the master descriptor. Output logging is done by the PTY reader,
// not the child. Zero cols/rows leave the terminal at its default size.
func (l *Launcher) StartPTY(r *Record, cols, rows uint16) (*PTY, error) {
	// #nosec G204 -- the argv vector is the caller's validated request
	cmd := exec.Command(r.Command[0], r.Command[1:]...)
	cmd.Dir = r.Cwd
	cmd.Env = l.environFor(r, true)

	var ws *pty.Winsize
	if cols > 0 && rows > 0 {
		ws = &pty.Winsize{Cols: cols, Rows: rows}
	}
	master, err := pty.StartWithSize(cmd, ws)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	if err := l.markStarted(r, cmd); err != nil {
		_ = master.Close()
		return nil, err
	}
	p, err := NewPTY(r.ID, master, r.StdoutLog)
	if err != nil {
		_ = master.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	return p, nil
}

// markStarted stamps pid, start time and running status and persists the
// record. Only a successfully started process ever reaches disk.
func (l *Launcher) markStarted(r *Record, cmd *exec.Cmd) error {
	r.PID = cmd.Process.Pid
	r.Status = StatusRunning
	r.ProcStartUnix = ProcStartUnix(r.PID)
	r.Touch()
	// The exit status is collected via Wait4 during sweep, never cmd.Wait,
	// so the handle can be released right away.
	_ = cmd.Process.Release()
	return l.store.Save(r)
}
