package main

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestGenkeyCmdWritesKeyFilesLoadableByLoadKeyRing(t *testing.T) {
	dir := t.TempDir()
	cmd := genkeyCmd()
	cmd.SetArgs([]string{"--peer-count", "3", "--dir", dir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("genkey Execute: %v", err)
	}

	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, strconv.Itoa(i)+".key")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected key file %s to exist: %v", path, err)
		}
	}

	ring, err := loadKeyRing(dir, 3)
	if err != nil {
		t.Fatalf("loadKeyRing: %v", err)
	}
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		_, addr, err := ring.NodeKey(i)
		if err != nil {
			t.Fatalf("NodeKey(%d): %v", i, err)
		}
		seen[addr.String()] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct addresses round-tripped through disk, got %d", len(seen))
	}
}

func TestLoadKeyRingMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := loadKeyRing(dir, 1); err == nil {
		t.Fatal("expected an error loading keys from an empty directory")
	}
}

func TestBenchCmdRunsEndToEnd(t *testing.T) {
	cmd := benchCmd()
	cmd.SetArgs([]string{"--count", "5", "--participants", "3"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("bench Execute: %v", err)
	}
}
