package deps

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckResolvesFromPath(t *testing.T) {
	binDir := t.TempDir()
	ffmpeg := writeStub(t, binDir, "ffmpeg")
	t.Setenv("PATH", binDir)

	results := Check([]Requirement{
		{Name: "FFmpeg", Command: "ffmpeg"},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Path != ffmpeg || results[0].Detail != "" {
		t.Fatalf("unexpected ffmpeg status %#v", results[0])
	}
	if results[1].Available || !strings.Contains(results[1].Detail, "not found") {
		t.Fatalf("unexpected missing status %#v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank status %#v", results[2])
	}
}

func TestMissingIgnoresOptional(t *testing.T) {
	binDir := t.TempDir()
	writeStub(t, binDir, "ffmpeg")
	writeStub(t, binDir, "ffprobe")
	t.Setenv("PATH", binDir)

	reqs := append(EncoderRequirements(), Requirement{Name: "Extra", Command: "extra-tool", Optional: true})
	if err := Missing(Check(reqs)); err != nil {
		t.Fatalf("optional tool should not be required: %v", err)
	}

	t.Setenv("PATH", t.TempDir())
	err := Missing(Check(reqs))
	if err == nil {
		t.Fatal("expected missing encoder tools")
	}
	if !strings.Contains(err.Error(), "FFmpeg") || !strings.Contains(err.Error(), "FFprobe") {
		t.Fatalf("expected both tools named, got %v", err)
	}
	if strings.Contains(err.Error(), "Extra") {
		t.Fatalf("optional tool reported as missing: %v", err)
	}
}
