package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reelup/internal/logging"
	"reelup/internal/records"
	"reelup/internal/services"
	"reelup/internal/upload"
)

// State is the task lifecycle.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("task already started")
	// ErrNotRunning is returned by Cancel outside the Running state.
	ErrNotRunning = errors.New("task not running")
	// ErrNotFinished is returned by Finish before Step has reported done.
	ErrNotFinished = errors.New("task not finished")
	// ErrInputAlreadySet guards the one-shot export hand-off.
	ErrInputAlreadySet = errors.New("task input already provided")
)

// Uploader is the orchestrator surface a task drives.
type Uploader interface {
	RegisterFiles(ctx context.Context, paths []string, folderID string) (map[string]string, error)
	Jobs() []*upload.Job
	UploadAll(ctx context.Context, jobs []*upload.Job) <-chan upload.JobUpdate
	Cancel(path string) bool
	CancelAll()
	Wait()
	Progress() *upload.Progress
}

// RecordSink stores upload records written by Finish.
type RecordSink interface {
	Put(ctx context.Context, rec records.Record) error
}

// Result is the final state of one file.
type Result struct {
	Path    string
	AssetID string
	Size    int64
	State   upload.JobState
	Err     error
}

// Option customises a Task.
type Option func(*Task)

// WithPhaseWeight sets the share of total progress owned by an upstream
// phase such as a transcode. Values are clamped to [0,1].
func WithPhaseWeight(weight float64) Option {
	return func(t *Task) {
		t.phaseWeight = clamp(weight)
	}
}

// WithRecordSink sets where Finish writes upload records.
func WithRecordSink(sink RecordSink) Option {
	return func(t *Task) {
		t.sink = sink
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Task) {
		if now != nil {
			t.now = now
		}
	}
}

// Task is a poll-driven wrapper around one upload batch. A caller drives it
// with Start, then Step and Progress on its own cadence, then Finish. Work
// happens on a background goroutine; none of the polling methods block.
type Task struct {
	uploader    Uploader
	folderID    string
	paths       []string
	phaseWeight float64
	sink        RecordSink
	logger      *slog.Logger
	now         func() time.Time

	mu              sync.Mutex
	state           State
	finished        bool
	lastError       error
	lastProgress    float64
	upstream        float64
	uploadCount     int
	cancelRequested bool
	results         []Result
	workerErr       error

	workerDone chan struct{}
	cancelCh   chan struct{}
	cancelOnce sync.Once
	exports    chan string
	exportOnce sync.Once

	finishMu sync.Mutex
	recorded bool
}

// New builds a task uploading paths into folderID. With no paths the task
// waits for StartExport to supply one.
func New(uploader Uploader, folderID string, paths []string, opts ...Option) *Task {
	t := &Task{
		uploader:   uploader,
		folderID:   folderID,
		paths:      append([]string(nil), paths...),
		logger:     logging.NewNop(),
		now:        time.Now,
		state:      StateNotStarted,
		workerDone: make(chan struct{}),
		cancelCh:   make(chan struct{}),
		exports:    make(chan string, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.NewComponentLogger(t.logger, "task")
	return t
}

// Start moves the task to Running and spawns its worker. It never blocks.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateNotStarted {
		return ErrAlreadyStarted
	}
	t.state = StateRunning
	go t.run(ctx)
	return nil
}

// StartExport hands the output of the upstream phase to the worker. It may
// be called once, and only on a task built without paths.
func (t *Task) StartExport(path string) error {
	if len(t.paths) > 0 {
		return fmt.Errorf("%w: task was built with %d paths", ErrInputAlreadySet, len(t.paths))
	}
	err := ErrInputAlreadySet
	t.exportOnce.Do(func() {
		t.exports <- path
		err = nil
	})
	return err
}

// SetUpstreamProgress feeds the upstream phase fraction. Lower values than
// previously reported are ignored.
func (t *Task) SetUpstreamProgress(fraction float64) {
	fraction = clamp(fraction)
	t.mu.Lock()
	if fraction > t.upstream {
		t.upstream = fraction
	}
	t.mu.Unlock()
}

func (t *Task) run(ctx context.Context) {
	defer close(t.workerDone)

	paths := t.paths
	if len(paths) == 0 {
		select {
		case path := <-t.exports:
			paths = []string{path}
		case <-t.cancelCh:
			return
		case <-ctx.Done():
			t.markCancelRequested()
			return
		}
	}

	t.mu.Lock()
	t.uploadCount = 1
	t.mu.Unlock()

	assets, err := t.uploader.RegisterFiles(ctx, paths, t.folderID)
	if err != nil {
		t.mu.Lock()
		t.workerErr = err
		t.mu.Unlock()
		return
	}
	if t.isCancelRequested() {
		t.uploader.CancelAll()
	}

	var jobs []*upload.Job
	for _, job := range t.uploader.Jobs() {
		if _, ok := assets[job.Path]; ok {
			jobs = append(jobs, job)
		}
	}

	uploadDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			t.markCancelRequested()
			t.uploader.CancelAll()
		case <-uploadDone:
		}
	}()

	for update := range t.uploader.UploadAll(ctx, jobs) {
		t.logUpdate(update)
	}
	close(uploadDone)
	t.uploader.Wait()

	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, Result{
			Path:    job.Path,
			AssetID: job.AssetID(),
			Size:    job.Size,
			State:   job.State(),
			Err:     job.Err(),
		})
	}
	t.mu.Lock()
	t.results = results
	t.mu.Unlock()
}

func (t *Task) logUpdate(update upload.JobUpdate) {
	attrs := []logging.Attr{
		logging.String(logging.FieldFile, update.Path),
		logging.String(logging.FieldAssetID, update.AssetID),
		logging.String("state", string(update.State)),
		logging.Int("parts_done", update.PartsDone),
		logging.Int("parts", update.PartCount),
	}
	switch update.State {
	case upload.JobFailed:
		logging.WarnWithContext(t.logger, "file upload failed", "file_failed", append(attrs, logging.Error(update.Err))...)
	case upload.JobCompleted, upload.JobCancelled:
		t.logger.Info("file upload finished", logging.Args(attrs...)...)
	default:
		t.logger.Debug("file upload state", logging.Args(attrs...)...)
	}
}

func (t *Task) markCancelRequested() {
	t.mu.Lock()
	t.cancelRequested = true
	t.mu.Unlock()
}

func (t *Task) isCancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}

// Step reports whether the task has finished, settling its outcome the first
// time the worker is seen to be done. It never blocks.
func (t *Task) Step() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return true
	}
	if t.state != StateRunning {
		return false
	}
	select {
	case <-t.workerDone:
	default:
		return false
	}

	t.state, t.lastError = t.outcome()
	t.finished = true
	t.logger.Info("upload task finished",
		logging.String("state", string(t.state)),
		logging.Int("files", len(t.results)),
	)
	return true
}

// outcome decides the terminal state. Callers hold t.mu.
func (t *Task) outcome() (State, error) {
	if t.workerErr != nil {
		if t.cancelRequested {
			return StateCancelled, services.ErrCancelled
		}
		return StateFailed, t.workerErr
	}
	var (
		failed    error
		cancelled bool
	)
	for _, res := range t.results {
		switch res.State {
		case upload.JobFailed:
			if failed == nil {
				failed = fmt.Errorf("%s: %w", res.Path, res.Err)
			}
		case upload.JobCancelled:
			cancelled = true
		}
	}
	switch {
	case failed != nil:
		return StateFailed, failed
	case t.cancelRequested && (cancelled || len(t.results) == 0):
		return StateCancelled, services.ErrCancelled
	default:
		return StateCompleted, nil
	}
}

// Progress blends upstream and upload progress into one value in [0,1].
// It never returns less than it returned before.
func (t *Task) Progress() float64 {
	var fraction float64
	if progress := t.uploader.Progress(); progress != nil {
		fraction = progress.Snapshot().Fraction()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	var value float64
	if t.uploadCount == 0 {
		value = t.phaseWeight * t.upstream
	} else {
		value = t.phaseWeight + (1-t.phaseWeight)*fraction
	}
	value = clamp(value)
	if value < t.lastProgress {
		value = t.lastProgress
	}
	t.lastProgress = value
	return value
}

// Finish writes one upload record per completed file when the task
// completed. It is only valid after Step reported done and writes at most
// once; a sink error leaves the task unrecorded so Finish can be retried.
func (t *Task) Finish(ctx context.Context) error {
	t.finishMu.Lock()
	defer t.finishMu.Unlock()

	t.mu.Lock()
	finished, state := t.finished, t.state
	results := append([]Result(nil), t.results...)
	t.mu.Unlock()

	if !finished {
		return ErrNotFinished
	}
	if t.recorded || state != StateCompleted || t.sink == nil {
		return nil
	}
	now := t.now()
	for _, res := range results {
		if res.State != upload.JobCompleted {
			continue
		}
		rec := records.Record{
			AssetID:    res.AssetID,
			SourcePath: res.Path,
			SizeBytes:  res.Size,
			UploadedAt: now,
		}
		if err := t.sink.Put(ctx, rec); err != nil {
			return fmt.Errorf("write upload record for %s: %w", res.Path, err)
		}
	}
	t.recorded = true
	return nil
}

// Cancel stops the whole task. In-flight parts finish; the state becomes
// Cancelled once Step observes the worker acknowledge it.
func (t *Task) Cancel() error {
	t.mu.Lock()
	if t.state != StateRunning || t.finished {
		t.mu.Unlock()
		return ErrNotRunning
	}
	t.cancelRequested = true
	t.mu.Unlock()

	t.cancelOnce.Do(func() { close(t.cancelCh) })
	t.uploader.CancelAll()
	t.logger.Info("upload task cancel requested")
	return nil
}

// CancelFile cancels one file; the rest of the batch continues.
func (t *Task) CancelFile(path string) bool {
	return t.uploader.Cancel(path)
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastError is the failure behind a Failed or Cancelled outcome.
func (t *Task) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastError
}

// Results lists per-file outcomes once the worker has finished.
func (t *Task) Results() []Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Result(nil), t.results...)
}

// Started reports whether the upload phase has begun.
func (t *Task) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uploadCount == 1
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
