package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jarvis.log")
	logger, err := New(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hello from test")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Fatalf("log file missing entry: %s", data)
	}
}

func TestRotatingFile_Defaults(t *testing.T) {
	lj := RotatingFile(Options{File: "x.log"})
	if lj.MaxSize != 5 || lj.MaxBackups != 2 {
		t.Fatalf("got size %d backups %d, want 5 and 2", lj.MaxSize, lj.MaxBackups)
	}
}
