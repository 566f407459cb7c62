// Package probe samples per-process resource usage for the supervisor. The
// native implementation binds gopsutil; when that fails on a platform the
// one-shot ps fallback takes over. Values a prober cannot measure stay nil
// so callers can tell "unknown" from "zero usage".
package probe

import "os"

// Stats is a point-in-time resource sample for one process.
type Stats struct {
	CPUPercent *float64
	MemoryRSS  *uint64
	NumThreads *int32
}

// Prober samples a process by pid. Sampling a dead or foreign pid returns
// an empty Stats rather than an error.
type Prober interface {
	Sample(pid int) Stats
	Name() string
}

// New picks the prober once: native bindings when they can sample the
// current process, otherwise the external ps query.
func New() Prober {
	g := gopsutilProber{}
	if s := g.Sample(os.Getpid()); s.CPUPercent != nil || s.MemoryRSS != nil || s.NumThreads != nil {
		return g
	}
	return psProber{}
}
