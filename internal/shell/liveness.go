package shell

import (
	"bytes"
	"errors"
	"os"
	"runtime"
	"strconv"
	"syscall"
)

// Alive reports whether pid refers to a live, non-zombie process. EPERM on
// the probe signal means the process exists under another uid and counts
// as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return errors.Is(err, syscall.EPERM)
	}
	// A quickly-exiting child lingers as a zombie until reaped; that is not
	// alive for supervision purposes.
	if runtime.GOOS == "linux" && isZombie(pid) {
		return false
	}
	return true
}

func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// Reap performs a non-blocking wait on pid. ok is true when an exit status
// was collected; the code follows the convention that death by signal N is
// reported as -N. ECHILD (not our child, e.g. an adopted process) leaves
// the exit status unknown.
func Reap(pid int) (code int, ok bool) {
	if pid <= 0 {
		return 0, false
	}
	var ws syscall.WaitStatus
	wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
	if err != nil || wpid != pid {
		return 0, false
	}
	switch {
	case ws.Exited():
		return ws.ExitStatus(), true
	case ws.Signaled():
		return -int(ws.Signal()), true
	}
	return 0, false
}

// SignalGroup delivers sig to pid's process group. Shells are session
// leaders, so the group signal reaches the whole tree; if it fails the
// signal falls back to the single pid.
func SignalGroup(pid int, sig syscall.Signal) {
	if pid <= 0 {
		return
	}
	if err := syscall.Kill(-pid, sig); err != nil {
		_ = syscall.Kill(pid, sig)
	}
}
