package transcode

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	draptolib "github.com/five82/drapto"
)

// Update is one progress report from the encoder. Percent is 0-100.
type Update struct {
	Percent float64
	Stage   string
	Message string
	Warning string
}

// Encoder produces an upload-ready file from a source.
type Encoder interface {
	Encode(ctx context.Context, inputPath, outputDir string, progress func(Update)) (string, error)
}

// Library encodes in-process with drapto.
type Library struct {
	opts []draptolib.Option
}

// NewLibrary constructs a drapto-backed encoder.
func NewLibrary(opts ...draptolib.Option) *Library {
	return &Library{opts: append([]draptolib.Option{draptolib.WithResponsive()}, opts...)}
}

// Encode writes <stem>.mkv into outputDir and returns its path.
func (l *Library) Encode(ctx context.Context, inputPath, outputDir string, progress func(Update)) (string, error) {
	if inputPath == "" {
		return "", errors.New("input path required")
	}
	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return "", errors.New("output directory required")
	}

	encoder, err := draptolib.New(l.opts...)
	if err != nil {
		return "", err
	}
	var rep draptolib.Reporter
	if progress != nil {
		rep = newReporter(progress)
	}
	if _, err := encoder.EncodeWithReporter(ctx, inputPath, outputDir, rep); err != nil {
		return "", err
	}
	return OutputPath(inputPath, outputDir), nil
}

// OutputPath is where an encode of inputPath lands in outputDir.
func OutputPath(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(outputDir, stem+".mkv")
}

var _ Encoder = (*Library)(nil)
