package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "config.yaml")
	if fileExists(present) {
		t.Fatal("expected missing file to report false")
	}
	if err := os.WriteFile(present, []byte("network: testnet\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if !fileExists(present) {
		t.Fatal("expected written file to report true")
	}
}

func TestParseTier(t *testing.T) {
	valid := []string{"free", "bronze", "silver", "gold"}
	for _, name := range valid {
		if _, err := parseTier(name); err != nil {
			t.Fatalf("parseTier(%q): %v", name, err)
		}
	}
	if _, err := parseTier("platinum"); err == nil {
		t.Fatal("expected an error for an unknown tier name")
	}
}
