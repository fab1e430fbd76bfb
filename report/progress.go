package report

import "sync"

// Status is the coarse lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// ProgressSnapshot is a point-in-time copy of a Progress.
type ProgressSnapshot struct {
	Status  Status `json:"status"`
	Verbose string `json:"verbose"`
	Numeric int    `json:"numeric"`
}

// Progress is shared between a job and its progress parser. Readers, such as a
// status endpoint or the TUI, use Snapshot so they never observe a torn update.
type Progress struct {
	mu      sync.RWMutex
	status  Status
	verbose string
	numeric int
}

// NewProgress returns a queued Progress at 0%.
func NewProgress() *Progress {
	return &Progress{status: StatusQueued}
}

// Run marks the progress as running.
func (p *Progress) Run() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusRunning
}

// SetVerbose replaces the human-readable status line.
func (p *Progress) SetVerbose(verbose string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verbose = verbose
}

// Update sets numeric and verbose progress together.
func (p *Progress) Update(numeric int, verbose string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numeric = clampPercent(numeric)
	p.verbose = verbose
}

// Complete marks the progress as terminal at 100%.
func (p *Progress) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusCompleted
	p.numeric = 100
}

// Terminal reports whether no further progress will be made.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Abort marks the progress as terminal without touching the percentage.
func (p *Progress) Abort(verbose string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusAborted
	p.verbose = verbose
}

// Snapshot returns a consistent copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ProgressSnapshot{
		Status:  p.status,
		Verbose: p.verbose,
		Numeric: p.numeric,
	}
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
