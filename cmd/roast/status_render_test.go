package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"roastmachine/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "healthy", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestRunStatusKind(t *testing.T) {
	cases := map[string]statusKind{
		"complete":   statusOK,
		"errored":    statusError,
		"terminated": statusError,
		"paused":     statusWarn,
		"queued":     statusInfo,
		"running":    statusInfo,
	}
	for status, want := range cases {
		if got := runStatusKind(status); got != want {
			t.Fatalf("runStatusKind(%q) = %v, want %v", status, got, want)
		}
	}
}

func TestRenderStatusReportOptionalDependencyWarns(t *testing.T) {
	report := statusReport{
		DaemonError: "daemon not reachable at 127.0.0.1:1",
		Dependencies: []api.DependencyStatus{
			{Name: "FFmpeg", Command: "ffmpeg", Available: true},
			{Name: "nvidia-smi", Command: "nvidia-smi", Optional: true, Detail: "not found"},
		},
		QueueStats: map[string]int{"queued": 2},
	}
	out := renderStatusReport(report, false)
	requireContains(t, out, "[WARN] not running")
	requireContains(t, out, "[OK] ffmpeg")
	requireContains(t, out, "[WARN] not found")
	requireContains(t, out, "[INFO] 2")
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected non-file writer to disable color")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  a   short\nline ", 20); got != "a short line" {
		t.Fatalf("truncate collapsed = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("truncate = %q", got)
	}
}
