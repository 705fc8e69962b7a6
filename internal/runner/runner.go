package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"reelup/internal/api"
	"reelup/internal/config"
	"reelup/internal/logging"
	"reelup/internal/notifications"
	"reelup/internal/records"
	"reelup/internal/services"
	"reelup/internal/task"
	"reelup/internal/upload"
)

const finishTimeout = 30 * time.Second

// ErrBusy means another process holds the upload lock.
var ErrBusy = errors.New("another upload is already running")

// RecordLookup finds the last upload of a source file.
type RecordLookup interface {
	Latest(ctx context.Context, sourcePath string) (*records.Record, error)
}

// AssetLookup fetches the server-side state of an asset.
type AssetLookup interface {
	GetFileReference(ctx context.Context, auth api.Auth, id string) (*api.Asset, error)
}

// Summary describes how a driven task ended.
type Summary struct {
	State     task.State
	Files     int
	Completed int
	Failed    int
	Cancelled int
	Bytes     int64
	Duration  time.Duration
}

// DriveOptions shapes one Drive call.
type DriveOptions struct {
	// FolderName labels the destination in notifications.
	FolderName string
	// Upstream, when set, runs alongside the task and must hand its output
	// to the task. An upstream error cancels the task.
	Upstream func(ctx context.Context) error
	// OnProgress receives every polled progress value.
	OnProgress func(fraction float64)
}

// Option customises a Runner.
type Option func(*Runner)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithNotifier replaces the ntfy service built from config.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithPollInterval overrides the Step cadence.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithExistingCheck enables the skip-existing comparison.
func WithExistingCheck(recs RecordLookup, assets AssetLookup, auth upload.AuthSource) Option {
	return func(r *Runner) {
		r.records = recs
		r.assets = assets
		r.auth = auth
	}
}

// Runner drives upload tasks for the CLI.
type Runner struct {
	cfg          *config.Config
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration
	lockPath     string
	lock         *flock.Flock

	records RecordLookup
	assets  AssetLookup
	auth    upload.AuthSource
}

// New builds a runner for cfg.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:          cfg,
		logger:       logging.NewNop(),
		notifier:     notifications.NewService(cfg),
		pollInterval: cfg.PollInterval(),
		lockPath:     cfg.LockPath(),
		lock:         flock.New(cfg.LockPath()),
	}
	if r.pollInterval <= 0 {
		r.pollInterval = 250 * time.Millisecond
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "runner")
	return r
}

// Acquire takes the single-instance lock.
func (r *Runner) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := r.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrBusy
	}
	r.logger.Debug("upload lock acquired", logging.String("lock", r.lockPath))
	return nil
}

// Release drops the single-instance lock.
func (r *Runner) Release() {
	if err := r.lock.Unlock(); err != nil {
		r.logger.Warn("failed to release upload lock", logging.Error(err))
	}
}

// FilterExisting drops paths whose last recorded upload still exists on the
// service with the same size. Lookup failures keep the path.
func (r *Runner) FilterExisting(ctx context.Context, paths []string) (kept, skipped []string) {
	if !r.cfg.Upload.SkipExisting || r.records == nil || r.assets == nil || r.auth == nil {
		return paths, nil
	}
	auth, err := r.auth.Auth()
	if err != nil {
		return paths, nil
	}
	for _, path := range paths {
		if r.alreadyUploaded(ctx, auth, path) {
			skipped = append(skipped, path)
			continue
		}
		kept = append(kept, path)
	}
	return kept, skipped
}

func (r *Runner) alreadyUploaded(ctx context.Context, auth api.Auth, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	if err != nil {
		return false
	}
	rec, err := r.records.Latest(ctx, abs)
	if err != nil || rec == nil {
		return false
	}
	asset, err := r.assets.GetFileReference(ctx, auth, rec.AssetID)
	if err != nil {
		r.logger.Debug("existing asset lookup failed",
			logging.String(logging.FieldFile, abs),
			logging.String(logging.FieldAssetID, rec.AssetID),
			logging.Error(err),
		)
		return false
	}
	if asset.FileSize != info.Size() {
		r.logger.Info("previous upload differs, uploading again",
			logging.String(logging.FieldFile, abs),
			logging.Int64("local_bytes", info.Size()),
			logging.Int64("remote_bytes", asset.FileSize),
		)
		return false
	}
	r.logger.Info("file already uploaded, skipping",
		logging.String(logging.FieldFile, abs),
		logging.String(logging.FieldAssetID, rec.AssetID),
	)
	return true
}

// Drive starts tk and polls it to completion. Cancelling ctx cancels the
// task gracefully; in-flight parts still finish before Drive returns.
func (r *Runner) Drive(ctx context.Context, tk *task.Task, opts DriveOptions) (Summary, error) {
	started := time.Now()
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	// The task outlives ctx so an interrupt can drain in-flight parts.
	if err := tk.Start(context.WithoutCancel(ctx)); err != nil {
		return Summary{}, err
	}

	upstreamErr := make(chan error, 1)
	if opts.Upstream != nil {
		go func() {
			err := opts.Upstream(ctx)
			if err != nil {
				_ = tk.Cancel()
			}
			upstreamErr <- err
		}()
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	sampler := logging.NewProgressSampler(5)
	interrupted := ctx.Done()
	for {
		finished := tk.Step()
		progress := tk.Progress()
		if opts.OnProgress != nil {
			opts.OnProgress(progress)
		}
		phase := "upload"
		if !tk.Started() {
			phase = "transcode"
		}
		if sampler.ShouldLog(progress*100, phase) {
			r.logger.Info("upload progress",
				logging.String(logging.FieldStage, phase),
				logging.Float64("percent", progress*100),
			)
		}
		if finished {
			break
		}
		select {
		case <-interrupted:
			interrupted = nil
			if err := tk.Cancel(); err == nil {
				r.logger.Info("cancel requested, waiting for in-flight parts")
			}
		case <-ticker.C:
		}
	}

	var upErr error
	if opts.Upstream != nil {
		upErr = <-upstreamErr
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	finishErr := tk.Finish(finishCtx)

	summary := summarize(tk)
	summary.Duration = time.Since(started)

	var err error
	switch {
	case upErr != nil && ctx.Err() == nil:
		err = upErr
	case summary.State == task.StateFailed:
		err = tk.LastError()
	case summary.State == task.StateCancelled:
		err = services.ErrCancelled
	}
	if err == nil && finishErr != nil {
		err = finishErr
	}
	r.report(finishCtx, summary, opts.FolderName, err)
	return summary, err
}

func summarize(tk *task.Task) Summary {
	summary := Summary{State: tk.State()}
	for _, res := range tk.Results() {
		summary.Files++
		switch res.State {
		case upload.JobCompleted:
			summary.Completed++
			summary.Bytes += res.Size
		case upload.JobFailed:
			summary.Failed++
		case upload.JobCancelled:
			summary.Cancelled++
		}
	}
	return summary
}

func (r *Runner) report(ctx context.Context, summary Summary, folder string, err error) {
	var (
		event   notifications.Event
		payload notifications.Payload
	)
	switch {
	case errors.Is(err, services.ErrCancelled):
		event = notifications.EventUploadCancelled
		payload = notifications.Payload{"files": summary.Files, "completed": summary.Completed}
		r.logger.Info("upload cancelled", logging.Int("completed", summary.Completed), logging.Int("files", summary.Files))
	case err != nil:
		event = notifications.EventError
		payload = notifications.Payload{"context": "upload", "error": err}
		logging.ErrorWithContext(r.logger, "upload failed", "upload_failed",
			logging.Error(err),
			logging.Int("failed", summary.Failed),
			logging.Int("completed", summary.Completed),
		)
	default:
		event = notifications.EventUploadCompleted
		payload = notifications.Payload{
			"files":    summary.Completed,
			"bytes":    summary.Bytes,
			"folder":   folder,
			"duration": summary.Duration,
		}
		r.logger.Info("upload finished",
			logging.Int("files", summary.Completed),
			logging.Int64("bytes", summary.Bytes),
			logging.Duration("duration", summary.Duration),
		)
	}
	if nerr := r.notifier.Publish(ctx, event, payload); nerr != nil {
		logging.WarnWithContext(r.logger, "notification failed", "notify_failed", logging.Error(nerr))
	}
}
