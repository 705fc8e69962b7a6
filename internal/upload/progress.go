package upload

import "sync"

// Phase is the coarse position of an upload batch.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseRegistering Phase = "registering"
	PhaseUploading   Phase = "uploading"
	PhaseDone        Phase = "done"
)

// Progress is the record shared between upload workers and the poller.
// Each job contributes one unit per part plus one for merge and the worker
// job; failed and cancelled jobs settle whatever they had left.
type Progress struct {
	mu           sync.Mutex
	phase        Phase
	unitsTotal   int64
	unitsSettled int64
	partsTotal   int
	partsDone    int
	err          error
}

// ProgressSnapshot is a consistent copy of Progress.
type ProgressSnapshot struct {
	Phase        Phase
	UnitsTotal   int64
	UnitsSettled int64
	PartsTotal   int
	PartsDone    int
	Err          error
}

// Fraction is settled/total in [0,1]; zero before any job is registered.
func (s ProgressSnapshot) Fraction() float64 {
	if s.UnitsTotal <= 0 {
		return 0
	}
	f := float64(s.UnitsSettled) / float64(s.UnitsTotal)
	if f > 1 {
		return 1
	}
	return f
}

func NewProgress() *Progress {
	return &Progress{phase: PhaseIdle}
}

func (p *Progress) SetPhase(phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

// SetError records the most recent failure.
func (p *Progress) SetError(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *Progress) addJob(parts int) {
	p.mu.Lock()
	p.partsTotal += parts
	p.unitsTotal += int64(parts) + 1
	p.mu.Unlock()
}

func (p *Progress) partDone() {
	p.mu.Lock()
	p.partsDone++
	p.unitsSettled++
	p.mu.Unlock()
}

func (p *Progress) settle(units int64) {
	if units <= 0 {
		return
	}
	p.mu.Lock()
	p.unitsSettled += units
	p.mu.Unlock()
}

func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressSnapshot{
		Phase:        p.phase,
		UnitsTotal:   p.unitsTotal,
		UnitsSettled: p.unitsSettled,
		PartsTotal:   p.partsTotal,
		PartsDone:    p.partsDone,
		Err:          p.err,
	}
}
