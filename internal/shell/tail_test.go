package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTailReturnsLastLinesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	var b strings.Builder
	for i := 1; i <= 50; i++ {
		fmt.Fprintf(&b, "line-%02d\n", i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := Tail(path, 3)
	want := "line-48\nline-49\nline-50"
	if got != want {
		t.Fatalf("tail: got %q want %q", got, want)
	}
}

func TestTailMissingFileIsEmpty(t *testing.T) {
	if got := Tail(filepath.Join(t.TempDir(), "nope.log"), 10); got != "" {
		t.Fatalf("missing file: got %q", got)
	}
}

func TestTailHonorsByteBudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.log")
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&b, "%08d\n", i) // 9 bytes per line, ~18 KiB total
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := Tail(path, 5000)
	lines := strings.Split(got, "\n")
	if len(lines) >= 2000 {
		t.Fatalf("tail read past its byte budget: %d lines", len(lines))
	}
	if lines[len(lines)-1] != "00001999" {
		t.Fatalf("last line: got %q", lines[len(lines)-1])
	}
	if len(lines) > tailByteBudget/9+1 {
		t.Fatalf("too many lines for the byte budget: %d", len(lines))
	}
}
