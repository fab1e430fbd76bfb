// Package report holds the observable state of a transfer job: its progress,
// its ordered log, and its final result.
package report

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of a job. Success stays nil until the job finishes.
type Result struct {
	Success *bool `json:"success"`
}

// Report aggregates everything a scheduler needs to serve or persist about a job.
type Report struct {
	Token    string
	Target   string
	Progress *Progress
	Log      *Log

	mu     sync.RWMutex
	result Result
}

// New creates a report with a fresh token.
func New(target string) *Report {
	return NewWithToken(uuid.NewString(), target)
}

// NewWithToken creates a report using a caller-chosen token.
func NewWithToken(token, target string) *Report {
	return &Report{
		Token:    token,
		Target:   target,
		Progress: NewProgress(),
		Log:      NewLog("Transfer Module"),
	}
}

// SetSuccess records the final outcome.
func (r *Report) SetSuccess(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Success = &success
}

// Success returns the outcome and whether it has been determined yet.
func (r *Report) Success() (success bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.result.Success == nil {
		return false, false
	}
	return *r.result.Success, true
}

// Terminal reports whether the outcome is set and progress has completed or
// was aborted.
func (r *Report) Terminal() bool {
	_, ok := r.Success()
	return ok && r.Progress.Snapshot().Status.Terminal()
}

// Record is the serializable form of a Report.
type Record struct {
	Token     string           `json:"token"`
	Target    string           `json:"target,omitempty"`
	Progress  ProgressSnapshot `json:"progress"`
	Log       []Entry          `json:"log"`
	Data      Result           `json:"data"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Terminal reports whether the recorded job had finished.
func (r *Record) Terminal() bool {
	return r.Data.Success != nil && r.Progress.Status.Terminal()
}

// Snapshot returns a Record reflecting the current state.
func (r *Report) Snapshot() *Record {
	rec := &Record{
		Token:     r.Token,
		Target:    r.Target,
		Progress:  r.Progress.Snapshot(),
		Log:       r.Log.Entries(),
		UpdatedAt: time.Now().UTC(),
	}
	if success, ok := r.Success(); ok {
		rec.Data.Success = &success
	}
	return rec
}
