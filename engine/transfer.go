package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/franksops/siptransfer/executor"
	"github.com/franksops/siptransfer/provider"
	"github.com/franksops/siptransfer/report"
)

// TransferOrigin is the log origin of entries written by a TransferManager.
const TransferOrigin = "Transfer Manager"

// DefaultTransferOptions are passed to rsync when no other defaults are configured.
var DefaultTransferOptions = []string{"-a", "--info=progress2"}

// Options controls a single rsync invocation.
type Options struct {
	// Timeout is rsync's I/O timeout. Zero disables it.
	Timeout time.Duration
	// ProgressSink receives rsync's stdout. Nil discards it.
	ProgressSink io.Writer

	Compression bool
	// CompressionLevel is omitted from the command when nil.
	CompressionLevel *int
	Checksum         bool
	// Mirror deletes destination files missing at the source.
	Mirror bool
	// Partial keeps partially transferred files, Resume appends to them.
	Partial bool
	Resume  bool
	// BWLimit is in units of 1024 bytes per second. Zero is unlimited.
	BWLimit   int
	Ownership *Ownership
}

// Transferer runs one transfer attempt against a destination provider.
type Transferer interface {
	Provider() provider.Provider
	Transfer(ctx context.Context, src, dst string, opts Options) *report.Log
}

var _ Transferer = (*TransferManager)(nil)

// TransferManager builds and runs rsync against a local or remote provider.
type TransferManager struct {
	provider provider.Provider
	runner   executor.Runner
	// DefaultOptions are appended after all generated options.
	DefaultOptions []string
}

// NewTransferManager creates a TransferManager. A nil runner uses executor.New().
func NewTransferManager(p provider.Provider, runner executor.Runner) *TransferManager {
	if runner == nil {
		runner = executor.New()
	}
	return &TransferManager{
		provider:       p,
		runner:         runner,
		DefaultOptions: append([]string(nil), DefaultTransferOptions...),
	}
}

// Provider returns the destination provider.
func (m *TransferManager) Provider() provider.Provider {
	return m.provider
}

// Command is the rsync executable.
func (m *TransferManager) Command() string {
	return "rsync"
}

// CompressionArgs returns ["-z"] and optionally the explicit level, or nothing if disabled.
func CompressionArgs(enabled bool, level *int) []string {
	if !enabled {
		return nil
	}
	args := []string{"-z"}
	if level != nil {
		args = append(args, "--compress-level", strconv.Itoa(*level))
	}
	return args
}

// Args assembles the rsync arguments for copying src to dst.
func (m *TransferManager) Args(src, dst string, opts Options) []string {
	var args []string
	args = append(args, m.provider.ShellArgs()...)
	args = append(args, CompressionArgs(opts.Compression, opts.CompressionLevel)...)
	if secs := int(opts.Timeout / time.Second); secs > 0 {
		args = append(args, "--timeout="+strconv.Itoa(secs))
	}
	if opts.Checksum {
		args = append(args, "-c")
	}
	if opts.Mirror {
		args = append(args, "--delete")
	}
	if opts.Partial {
		args = append(args, "--partial")
	}
	if opts.Resume {
		args = append(args, "--append")
	}
	args = append(args, "--bwlimit="+strconv.Itoa(opts.BWLimit))
	args = append(args, opts.Ownership.Args()...)
	args = append(args, m.DefaultOptions...)
	args = append(args, sourceArg(src), m.provider.Location(dst))
	return args
}

// sourceArg resolves src and adds a trailing separator to directories so that
// rsync copies their contents instead of nesting them inside dst.
func sourceArg(src string) string {
	abs, err := filepath.Abs(src)
	if err != nil {
		abs = src
	}
	info, err := os.Stat(abs)
	if err == nil && info.IsDir() && !strings.HasSuffix(abs, string(os.PathSeparator)) {
		abs += string(os.PathSeparator)
	}
	return abs
}

// Transfer runs a single rsync attempt and returns its log. Every stderr line
// is a WARNING when rsync exits 0 and an ERROR otherwise; callers judge the
// attempt by the presence of ERROR entries. A run ended by ctx is always an ERROR.
func (m *TransferManager) Transfer(ctx context.Context, src, dst string, opts Options) *report.Log {
	log := report.NewLog(TransferOrigin)
	log.Log(report.SeverityEvent, fmt.Sprintf("Starting transfer of '%s'.", src))

	var runOpts []executor.Option
	if opts.ProgressSink != nil {
		runOpts = append(runOpts, executor.WithStdout(opts.ProgressSink))
	} else {
		runOpts = append(runOpts, executor.WithDiscardStdout())
	}

	res, err := m.runner.Run(ctx, m.Command(), m.Args(src, dst, opts), runOpts...)
	if err != nil {
		log.Log(report.SeverityError, err.Error())
		log.Log(report.SeverityEvent, "Error encountered during transfer.")
		return log
	}
	// a killed rsync leaves no stderr behind
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Log(report.SeverityError, fmt.Sprintf("Transfer interrupted: %v", ctxErr))
		log.Log(report.SeverityEvent, "Error encountered during transfer.")
		return log
	}

	severity := report.SeverityWarning
	if res.ExitCode != 0 {
		severity = report.SeverityError
	}
	for _, line := range strings.Split(res.Stderr, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		log.Log(severity, line)
	}

	if res.ExitCode == 0 {
		log.Log(report.SeverityEvent, "Transfer complete.")
	} else {
		log.Log(report.SeverityEvent, "Error encountered during transfer.")
	}
	return log
}
