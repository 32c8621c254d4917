package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWritePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	if err := writePidFile(path, 12345); err != nil {
		t.Fatalf("writePidFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil || pid != 12345 {
		t.Fatalf("pid file contents %q", data)
	}
}

func TestRemovePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")
	if err := writePidFile(path, 1); err != nil {
		t.Fatalf("writePidFile: %v", err)
	}
	if err := removePidFile(path); err != nil {
		t.Fatalf("removePidFile: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("pid file should be gone")
	}
	// Empty path is a no-op.
	if err := removePidFile(""); err != nil {
		t.Fatalf("removePidFile(\"\"): %v", err)
	}
}
