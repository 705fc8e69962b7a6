package transcode

import (
	"context"
	"fmt"
	"log/slog"

	"reelup/internal/logging"
)

// Target receives the encode's progress and output. *task.Task satisfies it.
type Target interface {
	SetUpstreamProgress(fraction float64)
	StartExport(path string) error
}

// Export encodes source into outputDir, reporting progress to target, and
// hands the encoded file to target once the encode succeeds.
func Export(ctx context.Context, enc Encoder, target Target, source, outputDir string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "transcode").With(logging.String(logging.FieldFile, source))
	sampler := logging.NewProgressSampler(10)

	output, err := enc.Encode(ctx, source, outputDir, func(u Update) {
		if u.Warning != "" {
			logging.WarnWithContext(logger, "encoder warning", "encode_warning", logging.String("detail", u.Warning))
		}
		if u.Percent <= 0 {
			return
		}
		target.SetUpstreamProgress(u.Percent / 100)
		if sampler.ShouldLog(u.Percent, u.Stage) {
			logger.Info("encode progress",
				logging.String(logging.FieldStage, u.Stage),
				logging.Float64("percent", u.Percent),
			)
		}
	})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", source, err)
	}
	target.SetUpstreamProgress(1)
	logger.Info("encode finished", logging.String("output", output))
	if err := target.StartExport(output); err != nil {
		return "", err
	}
	return output, nil
}
