package probe

import (
	"os/exec"
	"strconv"
	"strings"
)

// psProber shells out to ps once per sample. Column availability differs
// between platforms (nlwp is missing on some), so each field is parsed
// independently and simply omitted when absent.
type psProber struct{}

func (psProber) Name() string { return "ps" }

func (psProber) Sample(pid int) Stats {
	var st Stats
	out, err := exec.Command("ps", "-o", "%cpu=,rss=,nlwp=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		// Retry without nlwp for ps variants that reject it.
		out, err = exec.Command("ps", "-o", "%cpu=,rss=", "-p", strconv.Itoa(pid)).Output()
		if err != nil {
			return st
		}
	}
	fields := strings.Fields(string(out))
	if len(fields) >= 1 {
		if cpu, err := strconv.ParseFloat(fields[0], 64); err == nil {
			st.CPUPercent = &cpu
		}
	}
	if len(fields) >= 2 {
		if rssKiB, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
			rss := rssKiB * 1024
			st.MemoryRSS = &rss
		}
	}
	if len(fields) >= 3 {
		if n, err := strconv.ParseInt(fields[2], 10, 32); err == nil {
			nt := int32(n)
			st.NumThreads = &nt
		}
	}
	return st
}
