package probe

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

type gopsutilProber struct{}

func (gopsutilProber) Name() string { return "gopsutil" }

func (gopsutilProber) Sample(pid int) Stats {
	var st Stats
	proc, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return st
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		st.CPUPercent = &cpu
	}
	if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
		rss := mi.RSS
		st.MemoryRSS = &rss
	}
	if nt, err := proc.NumThreads(); err == nil {
		st.NumThreads = &nt
	}
	return st
}
