package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// daemonize re-execs the current command detached into its own session,
// minus the --daemonize flag, then exits the parent. The child sees
// ppid 1 (or at least a non-terminal parent) and skips this path.
func daemonize(pidFile, logFile string) error {
	if os.Getppid() == 1 {
		return nil
	}
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	var args []string
	skipNext := false
	for _, arg := range os.Args[1:] {
		if skipNext {
			skipNext = false
			continue
		}
		switch arg {
		case "--daemonize":
			continue
		case "--pidfile", "--logfile":
			skipNext = true
			continue
		}
		args = append(args, arg)
	}
	if pidFile != "" {
		args = append(args, "--pidfile", pidFile)
	}
	if logFile != "" {
		args = append(args, "--logfile", logFile)
	}

	// #nosec G204 -- re-exec of our own binary with filtered args
	cmd := exec.Command(executable, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if logFile != "" {
		// #nosec G304 -- operator-provided log path
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open daemon log: %w", err)
		}
		cmd.Stdout = logF
		cmd.Stderr = logF
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if pidFile != "" {
		if err := writePidFile(pidFile, cmd.Process.Pid); err != nil {
			return fmt.Errorf("write pid file: %w", err)
		}
	}
	fmt.Printf("daemon started with pid %d\n", cmd.Process.Pid)
	os.Exit(0)
	return nil
}

func writePidFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

func removePidFile(path string) error {
	if path == "" {
		return nil
	}
	return os.Remove(path)
}
