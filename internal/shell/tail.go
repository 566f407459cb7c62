package shell

import (
	"io"
	"os"
	"strings"
)

const (
	tailByteBudget = 4096
	// DefaultTailLines is the line cap applied when a caller asks for log
	// tails without a count.
	DefaultTailLines = 200
)

// Tail returns up to n trailing lines of the file at path. At most
// tailByteBudget bytes are read from the end, so the cost stays bounded no
// matter how large the log has grown. Missing or unreadable files yield an
// empty string.
func Tail(path string, n int) string {
	if n <= 0 {
		n = DefaultTailLines
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		return ""
	}
	off := fi.Size() - tailByteBudget
	if off < 0 {
		off = 0
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return ""
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	s := strings.TrimRight(string(b), "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
