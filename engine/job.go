package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/franksops/siptransfer/progress"
	"github.com/franksops/siptransfer/remote"
	"github.com/franksops/siptransfer/report"
)

var (
	// ErrJobStarted is returned when Run is called on a job more than once.
	ErrJobStarted = errors.New("job has already been started")

	// ErrConnectivity classifies a job that could not reach the remote.
	ErrConnectivity = errors.New("unable to establish connection to remote")

	// ErrConflict classifies a job whose destination already exists and could not be cleared.
	ErrConflict = errors.New("conflicting transfer destination")

	// ErrAttempt classifies a job whose transfer attempts all failed.
	ErrAttempt = errors.New("transfer failed")
)

// JobSettings holds the configuration shared by all jobs of a process.
type JobSettings struct {
	// DestinationRoot is the directory the target is placed into.
	DestinationRoot string
	// Local disables the connectivity probe and creates DestinationRoot if missing.
	Local bool
	// Overwrite allows an existing destination to be removed before transfer.
	Overwrite bool
	// Retries is the number of attempts after the first one.
	Retries       int
	RetryInterval time.Duration
	// Transfer is the template for every attempt. ProgressSink, Mirror,
	// Partial and Resume are set by the job.
	Transfer Options
	// Verify compares checksums of source and destination after a local transfer.
	Verify bool
}

// Job moves one target to the destination and records everything in its Report.
type Job struct {
	Config TransferConfig
	Report *report.Report

	settings JobSettings
	manager  Transferer
	client   *remote.Client
	parser   *progress.RsyncParser
	verifier *Verifier
	push     func()
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
	tempDir  string

	started atomic.Bool
	mu      sync.Mutex
	err     error
}

// JobOption configures a Job.
type JobOption func(*Job)

// WithClient enables remote mode. The client is probed before the transfer.
func WithClient(c *remote.Client) JobOption {
	return func(j *Job) {
		j.client = c
	}
}

// WithPush sets the function called after every observable state change.
// It is called from the job goroutine and from the progress parser.
func WithPush(push func()) JobOption {
	return func(j *Job) {
		j.push = push
	}
}

// WithLogger sets the process logger.
func WithLogger(logger *slog.Logger) JobOption {
	return func(j *Job) {
		j.logger = logger
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) JobOption {
	return func(j *Job) {
		j.sleep = sleep
	}
}

// WithReport makes the job write into an existing report.
func WithReport(r *report.Report) JobOption {
	return func(j *Job) {
		j.Report = r
	}
}

// WithParser sets the progress parser.
func WithParser(p *progress.RsyncParser) JobOption {
	return func(j *Job) {
		j.parser = p
	}
}

// WithVerifier sets the verifier used when JobSettings.Verify is on.
func WithVerifier(v *Verifier) JobOption {
	return func(j *Job) {
		j.verifier = v
	}
}

// WithTempDir sets where the progress pipe is created.
func WithTempDir(dir string) JobOption {
	return func(j *Job) {
		j.tempDir = dir
	}
}

// NewJob creates a job for cfg that runs its attempts through manager.
func NewJob(cfg TransferConfig, settings JobSettings, manager Transferer, opts ...JobOption) *Job {
	j := &Job{
		Config:   cfg,
		settings: settings,
		manager:  manager,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.Report == nil {
		j.Report = report.New(cfg.Target.Path)
	}
	if j.parser == nil {
		j.parser = progress.NewRsyncParser()
	}
	if j.verifier == nil {
		j.verifier = NewVerifier(1)
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	j.logger = j.logger.With("token", j.Report.Token)
	return j
}

// Destination is where the target ends up.
func (j *Job) Destination() string {
	return filepath.Join(j.settings.DestinationRoot, j.Config.Target.Name())
}

// Err returns why the job failed, or nil. It is only meaningful after Run returned.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Run executes the job to completion. Transfer failures are recorded in the
// report and classified by Err; the returned error is reserved for misuse and
// for failing to set up the progress pipe.
func (j *Job) Run(ctx context.Context) error {
	if !j.started.CompareAndSwap(false, true) {
		return ErrJobStarted
	}
	j.Report.Progress.Run()
	j.logger.Info("job started", "target", j.Config.Target.Path)

	dst := j.Destination()
	var (
		p        *fifo
		setupErr error
	)
	fatal := j.prepare(ctx, dst)
	if fatal == nil {
		j.setVerbose(fmt.Sprintf("preparing transfer of SIP '%s'", j.Config.Target.Abs()))
		p, setupErr = j.openPipe()
		if setupErr != nil {
			j.Report.Log.Log(report.SeverityError, setupErr.Error())
			fatal = setupErr
		}
	}
	if fatal == nil {
		fatal = j.transfer(ctx, dst, p.writer)
	}
	if fatal == nil && j.settings.Verify && j.settings.Local {
		fatal = j.verify(ctx, dst)
	}
	j.finalize(ctx, p, fatal)
	return setupErr
}

func (j *Job) prepare(ctx context.Context, dst string) error {
	if j.client == nil {
		j.setVerbose("testing SSH-connection to remote")
	} else {
		j.setVerbose(fmt.Sprintf("testing SSH-connection to remote at '%s'", j.client.Destination()))

		res, err := j.client.Query(ctx, "echo 'ok'")
		if err != nil || res.ExitCode != 0 {
			detail := ""
			if res != nil {
				detail = strings.ReplaceAll(res.Stderr, "\n", "")
			}
			if err != nil {
				detail = err.Error()
			}
			j.Report.Log.Log(report.SeverityError,
				fmt.Sprintf("Unable to establish connection to remote (%s). Aborting..", detail))
			j.notify()
			return fmt.Errorf("%w: %s", ErrConnectivity, detail)
		}
	}

	dest := j.manager.Provider()
	if j.settings.Local {
		if err := dest.MkdirAll(ctx, j.settings.DestinationRoot); err != nil {
			j.Report.Log.Log(report.SeverityError,
				fmt.Sprintf("Unable to create destination '%s': %v", j.settings.DestinationRoot, err))
			j.notify()
			return fmt.Errorf("failed to create destination root: %w", err)
		}
	}

	j.setVerbose(fmt.Sprintf("checking availability of target destination '%s'", dst))
	exists, err := dest.DirExists(ctx, dst)
	if err != nil {
		j.Report.Log.Log(report.SeverityError,
			fmt.Sprintf("Unable to check target destination '%s': %v", dst, err))
		j.notify()
		return fmt.Errorf("%w: %w", ErrConnectivity, err)
	}
	if !exists {
		return nil
	}

	if !j.settings.Overwrite {
		j.Report.Log.Log(report.SeverityError,
			fmt.Sprintf("SIP transfer cannot be executed. The target destination '%s' already exists.", dst))
		j.notify()
		return fmt.Errorf("%w: '%s' already exists", ErrConflict, dst)
	}

	res, err := dest.Remove(ctx, dst)
	if err != nil || res.ExitCode != 0 {
		detail := ""
		if res != nil {
			detail = res.Stderr
		}
		if err != nil {
			detail = err.Error()
		}
		j.Report.Log.LogFrom(report.SeverityError, TransferOrigin,
			fmt.Sprintf("Conflicting transfer destination '%s'. Problem encountered while trying to delete: %s", dst, detail))
		j.notify()
		return fmt.Errorf("%w: unable to delete '%s'", ErrConflict, dst)
	}

	j.Report.Log.Log(report.SeverityWarning,
		fmt.Sprintf("Conflicting transfer destination '%s' has been deleted.", dst))
	j.logger.Warn("removed conflicting destination", "destination", dst)
	j.notify()
	return nil
}

func (j *Job) transfer(ctx context.Context, dst string, sink *os.File) error {
	src := j.Config.Target.Abs()
	retries := max(j.settings.Retries, 0)

	opts := j.settings.Transfer
	opts.ProgressSink = sink
	opts.Mirror = true
	opts.Partial = retries > 0
	opts.Resume = retries > 0

	j.Report.Progress.SetVerbose(fmt.Sprintf("transferring SIP '%s'", src))
	j.Report.Log.Log(report.SeverityEvent, fmt.Sprintf("Attempting transfer of SIP '%s'.", src))
	j.notify()

	for attempt := 0; attempt <= retries; attempt++ {
		attemptLog := j.manager.Transfer(ctx, src, dst, opts)
		j.Report.Log.Merge(attemptLog)
		j.notify()

		if !attemptLog.Failed() {
			j.logger.Info("transfer attempt succeeded", "attempt", attempt+1)
			return nil
		}
		if attempt == retries {
			break
		}

		interval := j.settings.RetryInterval
		j.Report.Log.Log(report.SeverityEvent,
			fmt.Sprintf("SIP transfer attempt failed, retrying in %ds..", int(interval/time.Second)))
		j.logger.Warn("transfer attempt failed", "attempt", attempt+1, "retry_in", interval)
		j.notify()

		if err := j.sleep(ctx, interval); err != nil {
			j.Report.Log.Log(report.SeverityError, fmt.Sprintf("Retry interrupted: %v", err))
			return fmt.Errorf("%w: %w", ErrAttempt, err)
		}
	}
	return fmt.Errorf("%w after %d attempt(s)", ErrAttempt, retries+1)
}

func (j *Job) verify(ctx context.Context, dst string) error {
	j.setVerbose(fmt.Sprintf("verifying SIP '%s'", dst))
	vlog := j.verifier.Verify(ctx, j.Config.Target.Abs(), dst)
	j.Report.Log.Merge(vlog)
	j.notify()
	if vlog.Failed() {
		return fmt.Errorf("%w: verification of '%s' failed", ErrAttempt, dst)
	}
	return nil
}

func (j *Job) finalize(ctx context.Context, p *fifo, fatal error) {
	j.setVerbose("cleaning up")
	if p != nil {
		p.close()
		// the parser must be drained before progress is completed
		if err := j.parser.Wait(); err != nil {
			j.logger.Warn("progress listener stopped", "error", err)
		}
		p.remove()
	}

	failed := j.Report.Log.Failed()
	if !failed {
		j.Report.SetSuccess(true)
		j.Report.Log.Log(report.SeverityInfo, "SIP transfer complete.")
		j.logger.Info("job succeeded", "destination", j.Destination())
	} else {
		if fatal == nil {
			fatal = ErrAttempt
		}
		j.Report.SetSuccess(false)
		j.Report.Log.Log(report.SeverityError, "SIP transfer failed.")
		j.logger.Error("job failed", "error", fatal)
	}
	if failed && ctx.Err() != nil {
		j.Report.Progress.Abort(fmt.Sprintf("transfer of SIP '%s' aborted", j.Config.Target.Abs()))
	} else {
		j.Report.Progress.Complete()
	}

	j.mu.Lock()
	j.err = fatal
	j.mu.Unlock()
	j.notify()
}

func (j *Job) setVerbose(verbose string) {
	j.Report.Progress.SetVerbose(verbose)
	j.notify()
}

func (j *Job) notify() {
	if j.push != nil {
		j.push()
	}
}

// fifo is the named pipe rsync writes its progress to.
type fifo struct {
	dir    string
	writer *os.File
}

func (j *Job) openPipe() (*fifo, error) {
	dir, err := os.MkdirTemp(j.tempDir, "siptransfer-")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe directory: %w", err)
	}
	path := filepath.Join(dir, j.Report.Token)
	if err := unix.Mkfifo(path, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}

	if err := j.parser.Listen(path, j.Report.Progress, j.push); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	// blocks until the listener has opened the read end
	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		j.releaseListener(path)
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open pipe: %w", err)
	}
	return &fifo{dir: dir, writer: w}, nil
}

// releaseListener lets a listener that is still waiting for a writer see EOF
// and waits for it to exit. It gives up after a second.
func (j *Job) releaseListener(path string) {
	released := false
	for deadline := time.Now().Add(time.Second); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		if !j.parser.Listening() {
			released = true
			break
		}
		// fails with ENXIO until the listener has the read end open
		f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			continue
		}
		_ = f.Close()
		released = true
		break
	}
	if !released {
		j.logger.Warn("progress listener did not stop", "pipe", path)
		return
	}
	if err := j.parser.Wait(); err != nil {
		j.logger.Warn("progress listener stopped", "error", err)
	}
}

func (f *fifo) close() {
	_ = f.writer.Close()
}

func (f *fifo) remove() {
	_ = os.RemoveAll(f.dir)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// JobChannel is a channel used to queue and dispatch Jobs to workers
// in the worker pool.
type JobChannel chan *Job
