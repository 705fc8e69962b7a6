package upload

import (
	"errors"
	"fmt"
	"sync"
)

// PartStatus is the lifecycle of one part of a job.
type PartStatus string

const (
	PartPending  PartStatus = "pending"
	PartInFlight PartStatus = "in_flight"
	PartDone     PartStatus = "done"
	PartFailed   PartStatus = "failed"
)

// JobState is the lifecycle of one file.
type JobState string

const (
	JobRegistered JobState = "registered"
	JobUploading  JobState = "uploading"
	JobMerging    JobState = "merging"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

var (
	// ErrInvalidTransition is returned for a part or job transition that
	// would move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPartsIncomplete guards merge against parts that are not Done.
	ErrPartsIncomplete = errors.New("parts incomplete")
	// ErrAssetIDAlreadySet guards the set-once asset id.
	ErrAssetIDAlreadySet = errors.New("asset id already set")
)

var partTransitions = map[PartStatus][]PartStatus{
	PartPending:  {PartInFlight},
	PartInFlight: {PartDone, PartFailed},
	PartFailed:   {PartInFlight},
}

var jobTransitions = map[JobState][]JobState{
	JobRegistered: {JobUploading, JobFailed, JobCancelled},
	JobUploading:  {JobMerging, JobFailed, JobCancelled},
	JobMerging:    {JobProcessing, JobFailed, JobCancelled},
	JobProcessing: {JobCompleted, JobFailed, JobCancelled},
}

func allowed[T comparable](table map[T][]T, from, to T) bool {
	for _, candidate := range table[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// PartCount is ceil(size/chunkSize) with a minimum of one part, so empty
// files still register and merge.
func PartCount(size, chunkSize int64) int {
	if chunkSize <= 0 || size <= 0 {
		return 1
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// PartRange returns the byte offset and length of part index. The last part
// holds the remainder.
func PartRange(size, chunkSize int64, index int) (int64, int64) {
	if chunkSize <= 0 {
		return 0, size
	}
	offset := int64(index) * chunkSize
	if offset >= size {
		return offset, 0
	}
	return offset, min(chunkSize, size-offset)
}

// Job tracks one file through registration, part upload, merge and the
// worker job. Exported fields are fixed at registration.
type Job struct {
	Path      string
	Name      string
	MimeType  string
	FolderID  string
	Size      int64
	ChunkSize int64

	mu        sync.Mutex
	assetID   string
	partURLs  []string
	parts     []PartStatus
	attempts  []int
	state     JobState
	err       error
	cancelled bool
	running   bool
	units     int64
	settled   int64
}

func newJob(path, name, mimeType, folderID string, size, chunkSize int64) *Job {
	count := PartCount(size, chunkSize)
	parts := make([]PartStatus, count)
	for i := range parts {
		parts[i] = PartPending
	}
	return &Job{
		Path:      path,
		Name:      name,
		MimeType:  mimeType,
		FolderID:  folderID,
		Size:      size,
		ChunkSize: chunkSize,
		parts:     parts,
		attempts:  make([]int, count),
		state:     JobRegistered,
		units:     int64(count) + 1,
	}
}

// PartCount is the number of parts this job uploads.
func (j *Job) PartCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.parts)
}

// PartRange is the byte range of part index.
func (j *Job) PartRange(index int) (int64, int64) {
	return PartRange(j.Size, j.ChunkSize, index)
}

// AssetID is the server-assigned id, empty until registration succeeds.
func (j *Job) AssetID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.assetID
}

func (j *Job) setAssetID(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.assetID != "" {
		return ErrAssetIDAlreadySet
	}
	j.assetID = id
	return nil
}

func (j *Job) setPartURLs(urls []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(urls) != len(j.parts) {
		return fmt.Errorf("expected %d part urls, got %d", len(j.parts), len(urls))
	}
	j.partURLs = append([]string(nil), urls...)
	return nil
}

// PartURL returns the pre-signed destination for part index.
func (j *Job) PartURL(index int) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index < 0 || index >= len(j.partURLs) || j.partURLs[index] == "" {
		return "", false
	}
	return j.partURLs[index], true
}

// PartStatus returns the status of part index.
func (j *Job) PartStatus(index int) PartStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index < 0 || index >= len(j.parts) {
		return ""
	}
	return j.parts[index]
}

// PartStatuses returns a copy of every part's status.
func (j *Job) PartStatuses() []PartStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]PartStatus(nil), j.parts...)
}

// PartAttempts reports how many times part index has gone in flight.
func (j *Job) PartAttempts(index int) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index < 0 || index >= len(j.attempts) {
		return 0
	}
	return j.attempts[index]
}

func (j *Job) transitionPart(index int, to PartStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if index < 0 || index >= len(j.parts) {
		return fmt.Errorf("part %d out of range: %w", index, ErrInvalidTransition)
	}
	from := j.parts[index]
	if !allowed(partTransitions, from, to) {
		return fmt.Errorf("part %d %s -> %s: %w", index, from, to, ErrInvalidTransition)
	}
	j.parts[index] = to
	if to == PartInFlight {
		j.attempts[index]++
	}
	return nil
}

// PartsDone counts parts that have been uploaded and acknowledged.
func (j *Job) PartsDone() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	done := 0
	for _, status := range j.parts {
		if status == PartDone {
			done++
		}
	}
	return done
}

func (j *Job) allPartsDone() bool {
	return j.PartsDone() == j.PartCount()
}

// State is the job's current lifecycle state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err is the failure that ended the job, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) setState(to JobState, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !allowed(jobTransitions, j.state, to) {
		return fmt.Errorf("job %s -> %s: %w", j.state, to, ErrInvalidTransition)
	}
	j.state = to
	if err != nil {
		j.err = err
	}
	return nil
}

// Cancelled reports whether cancellation has been requested.
func (j *Job) Cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// requestCancel flags the job. ok is false when the job is already terminal
// or its worker job is being created; running tells the caller whether a
// worker will observe the flag.
func (j *Job) requestCancel() (ok, running bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() || j.state == JobProcessing {
		return false, false
	}
	j.cancelled = true
	return true, j.running
}

// claim marks the job as owned by a worker. It fails for terminal or
// already-claimed jobs.
func (j *Job) claim() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running || j.state.Terminal() {
		return false
	}
	j.running = true
	return true
}

func (j *Job) settle(units int64) {
	j.mu.Lock()
	j.settled += units
	j.mu.Unlock()
}

// terminate moves the job to a terminal state and returns the progress
// units it had not settled yet. Only the first terminal transition wins.
func (j *Job) terminate(to JobState, err error) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !to.Terminal() || !allowed(jobTransitions, j.state, to) {
		return 0, fmt.Errorf("job %s -> %s: %w", j.state, to, ErrInvalidTransition)
	}
	j.state = to
	if err != nil {
		j.err = err
	}
	remaining := max(j.units-j.settled, 0)
	j.settled = j.units
	return remaining, nil
}
