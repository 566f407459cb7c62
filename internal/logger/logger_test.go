package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupFileLogging(t *testing.T) {
	file := filepath.Join(t.TempDir(), "supervisor.log")
	l := Setup(Config{Level: "debug", File: file})
	l.Debug("file sink check", "k", "v")

	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "file sink check") {
		t.Fatalf("log content: %q", b)
	}
}

func TestSetupInstallsDefault(t *testing.T) {
	file := filepath.Join(t.TempDir(), "supervisor.log")
	Setup(Config{File: file})
	slog.Info("through the default logger")
	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "through the default logger") {
		t.Fatalf("log content: %q", b)
	}
}
