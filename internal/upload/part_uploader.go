package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"reelup/internal/api"
	"reelup/internal/logging"
	"reelup/internal/services"
)

// AuthSource supplies identity fields for authenticated calls. A Session
// returns services.ErrNotAuthenticated once logged out.
type AuthSource interface {
	Auth() (api.Auth, error)
}

// PartClient is the subset of the service client a part upload needs.
type PartClient interface {
	UploadPart(ctx context.Context, partURL, contentType string, body io.Reader, size int64) error
	CompletePart(ctx context.Context, auth api.Auth, assetID string, partNum int) error
}

// PartUploader moves one byte range of one file to its pre-signed URL.
type PartUploader struct {
	client PartClient
	auth   AuthSource
	logger *slog.Logger
}

// NewPartUploader builds an uploader. A nil logger discards output.
func NewPartUploader(client PartClient, auth AuthSource, logger *slog.Logger) *PartUploader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PartUploader{client: client, auth: auth, logger: logger}
}

// UploadPart makes one attempt at part index: PUT the range, then
// acknowledge it. The part is Done only after the acknowledgement
// succeeds; any failure leaves it Failed so a retry re-uploads before
// acknowledging again.
func (u *PartUploader) UploadPart(ctx context.Context, job *Job, index int) error {
	partURL, ok := job.PartURL(index)
	if !ok {
		return services.Wrap(services.ErrPartUploadFailed, "upload", "part", fmt.Sprintf("no url for part %d of %s", index+1, job.Name), nil)
	}
	auth, err := u.auth.Auth()
	if err != nil {
		return err
	}
	assetID := job.AssetID()
	if assetID == "" {
		return services.Wrap(services.ErrPartUploadFailed, "upload", "part", job.Name+" is not registered", nil)
	}

	if err := job.transitionPart(index, PartInFlight); err != nil {
		return err
	}
	if err := u.send(ctx, job, index, partURL, auth, assetID); err != nil {
		if terr := job.transitionPart(index, PartFailed); terr != nil {
			return terr
		}
		return err
	}
	return job.transitionPart(index, PartDone)
}

func (u *PartUploader) send(ctx context.Context, job *Job, index int, partURL string, auth api.Auth, assetID string) error {
	offset, length := job.PartRange(index)

	// Each attempt owns its handle so parts can be read concurrently.
	file, err := os.Open(job.Path)
	if err != nil {
		return services.Wrap(services.ErrFileUnreadable, "upload", "part", "open "+job.Path, err)
	}
	defer file.Close()

	section := io.NewSectionReader(file, offset, length)
	if err := u.client.UploadPart(ctx, partURL, job.MimeType, section, length); err != nil {
		return services.Wrap(services.ErrPartUploadFailed, "upload", "part", fmt.Sprintf("put part %d of %s", index+1, job.Name), err)
	}
	if err := u.client.CompletePart(ctx, auth, assetID, index+1); err != nil {
		return services.Wrap(services.ErrPartUploadFailed, "upload", "part", fmt.Sprintf("acknowledge part %d of %s", index+1, job.Name), err)
	}

	u.logger.Debug("part uploaded",
		logging.String(logging.FieldFile, job.Path),
		logging.String(logging.FieldAssetID, assetID),
		logging.Int("part", index+1),
		logging.Int64("bytes", length),
	)
	return nil
}
