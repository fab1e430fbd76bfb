// Package executor runs external programs and reports their exit code and
// captured output. A nonzero exit code is a result, not an error.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Result holds the outcome of one process run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the process exited with code 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Runner runs a program to completion.
type Runner interface {
	Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error)
}

// Options configures a run.
type Options struct {
	// Stdout receives the process stdout instead of capturing it. When it is an
	// *os.File the descriptor is handed to the child directly.
	Stdout io.Writer
	// DiscardStdout drops stdout entirely. Ignored if Stdout is set.
	DiscardStdout bool
}

// Option modifies Options.
type Option func(*Options)

// WithStdout redirects stdout to w.
func WithStdout(w io.Writer) Option {
	return func(o *Options) {
		o.Stdout = w
	}
}

// WithDiscardStdout drops stdout.
func WithDiscardStdout() Option {
	return func(o *Options) {
		o.DiscardStdout = true
	}
}

// CommandRunner implements Runner with os/exec.
type CommandRunner struct{}

// New returns a CommandRunner.
func New() *CommandRunner {
	return &CommandRunner{}
}

// Run starts program and waits for it. The returned error is non-nil only if the
// process could not be started or waited on; in that case ExitCode is -1.
// Cancelling ctx kills the process.
func (c *CommandRunner) Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	cmd := exec.CommandContext(ctx, program, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	switch {
	case options.Stdout != nil:
		cmd.Stdout = options.Stdout
	case options.DiscardStdout:
		cmd.Stdout = nil
	default:
		cmd.Stdout = &stdoutBuf
	}
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	result := &Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("failed to run %s: %w", program, err)
	}
	return result, nil
}
