package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelup/internal/config"
	"reelup/internal/records"
)

type cliEnv struct {
	configPath string
	stateDir   string
}

func setupCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	base := t.TempDir()
	env := cliEnv{
		configPath: filepath.Join(base, "config.toml"),
		stateDir:   filepath.Join(base, "state"),
	}
	contents := fmt.Sprintf(`[paths]
state_dir = %q
log_dir = %q
staging_dir = %q

[service]
base_url = "http://127.0.0.1:9"

[logging]
format = "json"
level = "error"
`, env.stateDir, filepath.Join(base, "logs"), filepath.Join(base, "staging"))
	if err := os.WriteFile(env.configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLIEnv(t)

	out, _, err := runCLI(t, "--config", env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[upload]\npart_concurrency = -1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := runCLI(t, "--config", path, "config", "validate"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestConfigShowPrintsEffectiveValues(t *testing.T) {
	env := setupCLIEnv(t)
	out, _, err := runCLI(t, "--config", env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "http://127.0.0.1:9")
	requireContains(t, out, "chunk_size_bytes")
	requireContains(t, out, "upload_phase_weight")
}

func TestRecordsListsNewestFirst(t *testing.T) {
	env := setupCLIEnv(t)
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("open records: %v", err)
	}
	base := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first.mov", "second.mov"} {
		rec := records.Record{
			AssetID:    fmt.Sprintf("asset-%d", i+1),
			SourcePath: filepath.Join("/media", name),
			SizeBytes:  2048,
			UploadedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Put(context.Background(), rec); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	_ = store.Close()

	out, _, err := runCLI(t, "--config", env.configPath, "records")
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	requireContains(t, out, "asset-2")
	requireContains(t, out, "2.0 KiB")
	if strings.Index(out, "asset-2") > strings.Index(out, "asset-1") {
		t.Fatalf("expected newest record first:\n%s", out)
	}

	out, _, err = runCLI(t, "--config", env.configPath, "records", "-n", "1", "--json")
	if err != nil {
		t.Fatalf("records --json: %v", err)
	}
	requireContains(t, out, `"AssetID": "asset-2"`)
	if strings.Contains(out, "asset-1") {
		t.Fatalf("limit ignored:\n%s", out)
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	env := setupCLIEnv(t)
	file := filepath.Join(t.TempDir(), "clip.mov")
	if err := os.WriteFile(file, []byte("data"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	for _, args := range [][]string{
		{"projects"},
		{"upload", file},
		{"asset", "asset-1"},
	} {
		_, _, err := runCLI(t, append([]string{"--config", env.configPath}, args...)...)
		if err == nil || !strings.Contains(err.Error(), "not logged in") {
			t.Fatalf("%v: expected login error, got %v", args, err)
		}
	}
}

func TestExportRequiresTranscodeEnabled(t *testing.T) {
	env := setupCLIEnv(t)
	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	_, _ = f.WriteString("\n[transcode]\nenabled = false\n")
	_ = f.Close()

	_, _, err = runCLI(t, "--config", env.configPath, "export", "/media/source.mkv")
	if err == nil || !strings.Contains(err.Error(), "transcoding is disabled") {
		t.Fatalf("expected disabled transcode error, got %v", err)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLIEnv(t)
	out, _, err := runCLI(t, "--config", env.configPath, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "not configured")
}

func TestFormatTimecode(t *testing.T) {
	tests := map[float64]string{
		0:       "00:00:00",
		61.5:    "00:01:01.500",
		3725.25: "01:02:05.250",
	}
	for in, want := range tests {
		if got := formatTimecode(in); got != want {
			t.Fatalf("formatTimecode(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, []columnAlignment{alignLeft, alignRight})
	requireContains(t, out, "only")
	if strings.Count(out, "\n") < 4 {
		t.Fatalf("unexpected table:\n%s", out)
	}
}

func TestDoctorReportsTools(t *testing.T) {
	env := setupCLIEnv(t)
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "ffmpeg"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	out, _, err := runCLI(t, "--config", env.configPath, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	requireContains(t, out, "not logged in")
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "binary \"ffprobe\" not found")
}
