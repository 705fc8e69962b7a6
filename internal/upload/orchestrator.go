package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"reelup/internal/api"
	"reelup/internal/config"
	"reelup/internal/logging"
	"reelup/internal/services"
)

const deleteTimeout = 30 * time.Second

// Client is the service surface the orchestrator drives.
type Client interface {
	PartClient
	RegisterFileReferences(ctx context.Context, auth api.Auth, folderID string, files []api.FileSpec) ([]api.FileReference, error)
	MergeParts(ctx context.Context, auth api.Auth, assetID string) error
	CreateWorkerJob(ctx context.Context, auth api.Auth, assetID string) error
	DeleteFileReferences(ctx context.Context, auth api.Auth, folderID string, ids []string) error
}

// JobUpdate reports a job state change on the UploadAll stream.
type JobUpdate struct {
	Path      string
	AssetID   string
	State     JobState
	PartsDone int
	PartCount int
	Err       error
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithChunkSize overrides the part size.
func WithChunkSize(size int64) Option {
	return func(o *Orchestrator) {
		if size > 0 {
			o.chunkSize = size
		}
	}
}

// WithRetryPolicy overrides the per-step retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = policy
	}
}

// WithPartConcurrency bounds concurrent part uploads per file.
func WithPartConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.partConcurrency = n
		}
	}
}

// WithMimeDetector replaces content sniffing.
func WithMimeDetector(fn func(path string) string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.detect = fn
		}
	}
}

// WithProgress shares a progress record with the caller.
func WithProgress(p *Progress) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.progress = p
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator registers files in one batch and drives each through part
// upload, merge and the worker job. Failure and cancellation are isolated
// per file.
type Orchestrator struct {
	client          Client
	auth            AuthSource
	uploader        *PartUploader
	chunkSize       int64
	retry           RetryPolicy
	partConcurrency int
	detect          func(string) string
	progress        *Progress
	logger          *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*Job
	order   []string
	deletes sync.WaitGroup
}

// NewOrchestrator builds an orchestrator with default settings.
func NewOrchestrator(client Client, auth AuthSource, opts ...Option) *Orchestrator {
	cfg := config.Default()
	o := &Orchestrator{
		client:          client,
		auth:            auth,
		chunkSize:       cfg.Upload.ChunkSizeBytes,
		retry:           DefaultRetryPolicy(),
		partConcurrency: cfg.Upload.PartConcurrency,
		detect:          DetectMimeType,
		progress:        NewProgress(),
		logger:          logging.NewNop(),
		jobs:            make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "upload")
	o.uploader = NewPartUploader(client, auth, o.logger)
	return o
}

// NewOrchestratorFromConfig applies the upload section of cfg.
func NewOrchestratorFromConfig(cfg *config.Config, client Client, auth AuthSource, logger *slog.Logger, opts ...Option) *Orchestrator {
	base := []Option{
		WithChunkSize(cfg.Upload.ChunkSizeBytes),
		WithRetryPolicy(RetryPolicyFromConfig(cfg)),
		WithPartConcurrency(cfg.Upload.PartConcurrency),
		WithLogger(logger),
	}
	return NewOrchestrator(client, auth, append(base, opts...)...)
}

// Progress exposes the shared progress record.
func (o *Orchestrator) Progress() *Progress {
	return o.progress
}

// Job looks up a registered job by path.
func (o *Orchestrator) Job(path string) (*Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[path]
	return job, ok
}

// Jobs returns registered jobs in registration order.
func (o *Orchestrator) Jobs() []*Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	jobs := make([]*Job, 0, len(o.order))
	for _, path := range o.order {
		jobs = append(jobs, o.jobs[path])
	}
	return jobs
}

// RegisterFiles registers every path with one batched call and returns the
// asset id per path. On any failure no job is created.
func (o *Orchestrator) RegisterFiles(ctx context.Context, paths []string, folderID string) (map[string]string, error) {
	if len(paths) == 0 {
		return map[string]string{}, nil
	}
	if folderID == "" {
		return nil, services.Wrap(services.ErrBadRequest, "upload", "register", "destination folder required", nil)
	}
	auth, err := o.auth.Auth()
	if err != nil {
		return nil, err
	}

	pending := make([]*Job, 0, len(paths))
	specs := make([]api.FileSpec, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, services.Wrap(services.ErrFileUnreadable, "upload", "register", path, err)
		}
		if _, dup := seen[abs]; dup {
			return nil, services.Wrap(services.ErrBadRequest, "upload", "register", abs+" listed twice", nil)
		}
		seen[abs] = struct{}{}
		if _, exists := o.Job(abs); exists {
			return nil, services.Wrap(services.ErrBadRequest, "upload", "register", abs+" already registered", nil)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, services.Wrap(services.ErrFileUnreadable, "upload", "register", "stat "+abs, err)
		}
		if !info.Mode().IsRegular() {
			return nil, services.Wrap(services.ErrFileUnreadable, "upload", "register", abs+" is not a regular file", nil)
		}

		job := newJob(abs, displayName(abs), o.detect(abs), folderID, info.Size(), o.chunkSize)
		pending = append(pending, job)
		specs = append(specs, api.FileSpec{
			Name:     job.Name,
			FileType: job.MimeType,
			FileSize: job.Size,
			Parts:    job.PartCount(),
		})
	}

	o.progress.SetPhase(PhaseRegistering)
	refs, err := o.client.RegisterFileReferences(services.WithStage(ctx, "register"), auth, folderID, specs)
	if err != nil {
		o.progress.SetError(err)
		return nil, err
	}
	if len(refs) != len(pending) {
		err := services.Wrap(services.ErrServerError, "upload", "register", fmt.Sprintf("expected %d file references, got %d", len(pending), len(refs)), nil)
		o.discardReferences(folderID, refs)
		o.progress.SetError(err)
		return nil, err
	}
	for i, job := range pending {
		if refs[i].ID == "" {
			err = fmt.Errorf("%s: missing id", job.Name)
		} else if serr := job.setAssetID(refs[i].ID); serr != nil {
			err = serr
		} else if uerr := job.setPartURLs(refs[i].PartURLs); uerr != nil {
			err = fmt.Errorf("%s: %w", job.Name, uerr)
		}
		if err != nil {
			err = services.Wrap(services.ErrServerError, "upload", "register", "malformed registration response", err)
			o.discardReferences(folderID, refs)
			o.progress.SetError(err)
			return nil, err
		}
	}

	assets := make(map[string]string, len(pending))
	o.mu.Lock()
	for _, job := range pending {
		o.jobs[job.Path] = job
		o.order = append(o.order, job.Path)
		assets[job.Path] = job.AssetID()
	}
	o.mu.Unlock()
	for _, job := range pending {
		o.progress.addJob(job.PartCount())
		o.logger.Info("file registered",
			logging.String(logging.FieldFile, job.Path),
			logging.String(logging.FieldAssetID, job.AssetID()),
			logging.Int64("size_bytes", job.Size),
			logging.Int("parts", job.PartCount()),
			logging.String("mime_type", job.MimeType),
		)
	}
	return assets, nil
}

// discardReferences removes server records from a registration that was
// rejected locally.
func (o *Orchestrator) discardReferences(folderID string, refs []api.FileReference) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.ID != "" {
			ids = append(ids, ref.ID)
		}
	}
	if len(ids) > 0 {
		o.deleteAsync(folderID, ids)
	}
}

// UploadAll runs every job on its own goroutine and streams state changes.
// The channel is closed once every job it accepted is terminal. Jobs that
// are already terminal are reported immediately; jobs another UploadAll
// call owns are skipped.
func (o *Orchestrator) UploadAll(ctx context.Context, jobs []*Job) <-chan JobUpdate {
	updates := make(chan JobUpdate, len(jobs)*len(jobTransitions)+1)
	o.progress.SetPhase(PhaseUploading)

	var wg sync.WaitGroup
	for _, job := range jobs {
		if !job.claim() {
			// A job cancelled before or during the claim is still reported.
			if job.State().Terminal() {
				updates <- snapshotUpdate(job)
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runJob(ctx, job, func(u JobUpdate) { updates <- u })
		}()
	}
	go func() {
		wg.Wait()
		o.progress.SetPhase(PhaseDone)
		close(updates)
	}()
	return updates
}

func snapshotUpdate(job *Job) JobUpdate {
	return JobUpdate{
		Path:      job.Path,
		AssetID:   job.AssetID(),
		State:     job.State(),
		PartsDone: job.PartsDone(),
		PartCount: job.PartCount(),
		Err:       job.Err(),
	}
}

func (o *Orchestrator) runJob(ctx context.Context, job *Job, emit func(JobUpdate)) {
	ctx = services.WithFilePath(ctx, job.Path)
	logger := logging.WithContext(ctx, o.logger).With(logging.String(logging.FieldAssetID, job.AssetID()))

	advance := func(to JobState, err error) bool {
		if serr := job.setState(to, err); serr != nil {
			logger.Error("unexpected job transition", logging.Error(serr))
			return false
		}
		emit(snapshotUpdate(job))
		return true
	}
	cancelled := func() bool {
		if job.Cancelled() || ctx.Err() != nil {
			o.finishCancelled(job, logger)
			emit(snapshotUpdate(job))
			return true
		}
		return false
	}
	fail := func(err error) {
		remaining, serr := job.terminate(JobFailed, err)
		if serr != nil {
			return
		}
		o.progress.settle(remaining)
		o.progress.SetError(err)
		emit(snapshotUpdate(job))
		logging.ErrorWithContext(logger, "upload failed", "upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "re-run the upload once the service is reachable"),
		)
	}

	if cancelled() || !advance(JobUploading, nil) {
		return
	}
	if err := o.uploadParts(services.WithStage(ctx, "parts"), job); err != nil {
		if cancelled() {
			return
		}
		fail(err)
		return
	}
	if cancelled() {
		return
	}

	if !job.allPartsDone() {
		fail(services.Wrap(services.ErrPartUploadFailed, "upload", "merge", job.Name, ErrPartsIncomplete))
		return
	}
	if !advance(JobMerging, nil) {
		return
	}
	if err := o.step(services.WithStage(ctx, "merge"), func(ctx context.Context, auth api.Auth) error {
		return o.client.MergeParts(ctx, auth, job.AssetID())
	}); err != nil {
		fail(err)
		return
	}
	if cancelled() || !advance(JobProcessing, nil) {
		return
	}
	if err := o.step(services.WithStage(ctx, "worker_job"), func(ctx context.Context, auth api.Auth) error {
		return o.client.CreateWorkerJob(ctx, auth, job.AssetID())
	}); err != nil {
		fail(err)
		return
	}
	// The service owns the asset once the worker job exists; a late cancel
	// no longer applies.

	remaining, err := job.terminate(JobCompleted, nil)
	if err != nil {
		logger.Error("unexpected job transition", logging.Error(err))
		return
	}
	o.progress.settle(remaining)
	emit(snapshotUpdate(job))
	logger.Info("upload completed", logging.Int("parts", job.PartCount()), logging.Int64("size_bytes", job.Size))
}

// uploadParts fans parts out under the concurrency limit. Scheduling stops
// on cancellation or once a part has exhausted its retries; parts already
// dispatched finish.
func (o *Orchestrator) uploadParts(ctx context.Context, job *Job) error {
	var (
		g      errgroup.Group
		failed atomic.Bool
	)
	g.SetLimit(o.partConcurrency)
	for index := range job.PartCount() {
		if failed.Load() || job.Cancelled() || ctx.Err() != nil {
			break
		}
		if job.PartStatus(index) == PartDone {
			continue
		}
		g.Go(func() error {
			if err := o.uploadPart(ctx, job, index); err != nil {
				failed.Store(true)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) uploadPart(ctx context.Context, job *Job, index int) error {
	err := o.retry.Do(ctx, func(attempt int) error {
		if job.Cancelled() {
			return services.ErrCancelled
		}
		if attempt > 1 {
			o.logger.Debug("retrying part",
				logging.String(logging.FieldFile, job.Path),
				logging.Int("part", index+1),
				logging.Int("attempt", attempt),
			)
		}
		return o.uploader.UploadPart(ctx, job, index)
	})
	if err != nil {
		return err
	}
	job.settle(1)
	o.progress.partDone()
	return nil
}

// step runs one authenticated post-upload call under the retry policy.
func (o *Orchestrator) step(ctx context.Context, call func(context.Context, api.Auth) error) error {
	return o.retry.Do(ctx, func(int) error {
		auth, err := o.auth.Auth()
		if err != nil {
			return err
		}
		return call(ctx, auth)
	})
}

func (o *Orchestrator) finishCancelled(job *Job, logger *slog.Logger) {
	remaining, err := job.terminate(JobCancelled, services.ErrCancelled)
	if err != nil {
		return
	}
	o.progress.settle(remaining)
	o.deleteAsync(job.FolderID, []string{job.AssetID()})
	logger.Info("upload cancelled", logging.Int("parts_done", job.PartsDone()))
}

// Cancel stops scheduling parts for path and removes its server record once
// in-flight parts settle. It reports false for unknown or finished jobs.
func (o *Orchestrator) Cancel(path string) bool {
	job, ok := o.Job(path)
	if !ok {
		if abs, err := filepath.Abs(path); err == nil {
			job, ok = o.Job(abs)
		}
	}
	if !ok {
		return false
	}
	accepted, running := job.requestCancel()
	if !accepted {
		return false
	}
	if !running {
		o.finishCancelled(job, o.logger.With(logging.String(logging.FieldFile, job.Path)))
	}
	return true
}

// CancelAll cancels every job that has not finished.
func (o *Orchestrator) CancelAll() {
	for _, job := range o.Jobs() {
		o.Cancel(job.Path)
	}
}

// Wait blocks until best-effort delete calls have returned.
func (o *Orchestrator) Wait() {
	o.deletes.Wait()
}

func (o *Orchestrator) deleteAsync(folderID string, ids []string) {
	o.deletes.Add(1)
	go func() {
		defer o.deletes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()
		auth, err := o.auth.Auth()
		if err == nil {
			err = o.client.DeleteFileReferences(services.WithStage(ctx, "delete"), auth, folderID, ids)
		}
		if err != nil && !errors.Is(err, services.ErrNotFound) {
			logging.WarnWithContext(o.logger, "failed to delete file reference", "delete_failed",
				logging.Error(err),
				logging.Any("asset_ids", ids),
				logging.String(logging.FieldErrorHint, "remove the partial upload from the web interface"),
			)
		}
	}()
}
