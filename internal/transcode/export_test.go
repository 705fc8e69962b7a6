package transcode

import (
	"context"
	"errors"
	"testing"

	draptolib "github.com/five82/drapto"
)

type fakeEncoder struct {
	updates []Update
	err     error
}

func (f fakeEncoder) Encode(_ context.Context, input, outputDir string, progress func(Update)) (string, error) {
	for _, u := range f.updates {
		progress(u)
	}
	if f.err != nil {
		return "", f.err
	}
	return OutputPath(input, outputDir), nil
}

type recordingTarget struct {
	fractions []float64
	exports   []string
}

func (r *recordingTarget) SetUpstreamProgress(f float64) { r.fractions = append(r.fractions, f) }

func (r *recordingTarget) StartExport(path string) error {
	r.exports = append(r.exports, path)
	return nil
}

func TestExportFeedsProgressAndHandsOffOnce(t *testing.T) {
	enc := fakeEncoder{updates: []Update{
		{Stage: "analysis"},
		{Percent: 25, Stage: "encoding"},
		{Warning: "audio stream missing language"},
		{Percent: 80, Stage: "encoding"},
	}}
	target := &recordingTarget{}
	out, err := Export(context.Background(), enc, target, "/media/raw/Take 1.mov", "/staging", nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if out != "/staging/Take 1.mkv" {
		t.Fatalf("unexpected output %q", out)
	}
	want := []float64{0.25, 0.8, 1}
	if len(target.fractions) != len(want) {
		t.Fatalf("fractions %v, want %v", target.fractions, want)
	}
	for i := range want {
		if target.fractions[i] != want[i] {
			t.Fatalf("fractions %v, want %v", target.fractions, want)
		}
	}
	if len(target.exports) != 1 || target.exports[0] != out {
		t.Fatalf("exports %v", target.exports)
	}
}

func TestExportDoesNotHandOffFailedEncode(t *testing.T) {
	target := &recordingTarget{}
	_, err := Export(context.Background(), fakeEncoder{err: errors.New("ffmpeg crashed")}, target, "/a.mov", "/out", nil)
	if err == nil {
		t.Fatal("expected encode error")
	}
	if len(target.exports) != 0 {
		t.Fatalf("failed encode was exported: %v", target.exports)
	}
}

func TestLibraryValidatesArguments(t *testing.T) {
	lib := NewLibrary()
	if _, err := lib.Encode(context.Background(), "", "/out", nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := lib.Encode(context.Background(), "/a.mov", "  ", nil); err == nil {
		t.Fatal("expected error for empty output dir")
	}
}

func TestReporterForwardsProgress(t *testing.T) {
	var got []Update
	rep := newReporter(func(u Update) { got = append(got, u) })
	rep.EncodingProgress(draptolib.ProgressSnapshot{Percent: 42})
	rep.Warning("low disk space")
	rep.Hardware(draptolib.HardwareSummary{})

	if len(got) != 2 {
		t.Fatalf("expected two updates, got %#v", got)
	}
	if got[0].Percent != 42 || got[0].Stage != "encoding" {
		t.Fatalf("unexpected progress update %#v", got[0])
	}
	if got[1].Warning != "low disk space" {
		t.Fatalf("unexpected warning update %#v", got[1])
	}
}
