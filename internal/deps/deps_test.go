package deps

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank command status: %#v", results[2])
	}
}

func TestCheckBinariesResolvesFromPath(t *testing.T) {
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "uvx"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	results := CheckBinaries([]Requirement{{Name: "uvx", Command: "uvx"}})
	if !results[0].Available {
		t.Fatalf("expected uvx to resolve from PATH: %#v", results[0])
	}
	if results[0].Command != filepath.Join(binDir, "uvx") {
		t.Fatalf("expected resolved path, got %q", results[0].Command)
	}
}

func TestMissingRequired(t *testing.T) {
	statuses := []Status{
		{Name: "FFmpeg", Available: true},
		{Name: "uvx", Available: false},
		{Name: "nvidia-smi", Available: false, Optional: true},
	}
	missing := MissingRequired(statuses)
	if !slices.Equal(missing, []string{"uvx"}) {
		t.Fatalf("MissingRequired = %v", missing)
	}
}
