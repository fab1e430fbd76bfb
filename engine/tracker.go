package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/franksops/siptransfer/report"
	"github.com/franksops/siptransfer/store"
)

// CheckpointConfig defines how often a running job's report is persisted
type CheckpointConfig struct {
	// TimeInterval is the minimum time between two saves of a running report
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	TimeInterval: 2 * time.Second,
}

// Tracker persists job reports to a store.
type Tracker struct {
	store  store.Store
	config CheckpointConfig
	logger *slog.Logger
}

// NewTracker creates a new Tracker. A nil logger uses slog.Default().
func NewTracker(s store.Store, config CheckpointConfig, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  s,
		config: config,
		logger: logger,
	}
}

// Save writes the current state of r.
func (t *Tracker) Save(r *report.Report) error {
	return t.store.SaveReport(r.Snapshot())
}

// Track returns a push function for r. It saves at most once per checkpoint
// interval while the job runs and always saves a terminal report.
// The returned function is safe for concurrent use.
func (t *Tracker) Track(r *report.Report) func() {
	var (
		mu       sync.Mutex
		lastSave time.Time
	)
	return func() {
		mu.Lock()
		defer mu.Unlock()

		rec := r.Snapshot()
		if !rec.Terminal() && time.Since(lastSave) < t.config.TimeInterval {
			return
		}
		if err := t.store.SaveReport(rec); err != nil {
			// a missed checkpoint is recovered by the next push
			t.logger.Warn("failed to save report", "token", r.Token, "error", err)
			return
		}
		lastSave = time.Now()
	}
}
