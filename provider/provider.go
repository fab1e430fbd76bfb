package provider

import (
	"context"
	"strings"

	"github.com/franksops/siptransfer/executor"
)

// Provider represents the destination side of a transfer.
// A typical Provider might be the local filesystem or a host reached over ssh.
type Provider interface {
	// DirExists reports whether path is a directory at the destination.
	DirExists(ctx context.Context, path string) (bool, error)

	// FileExists reports whether path is a regular file at the destination.
	FileExists(ctx context.Context, path string) (bool, error)

	// Remove force-deletes path. Removing a missing path succeeds.
	Remove(ctx context.Context, path string) (*executor.Result, error)

	// MkdirAll creates path and its parents where the provider supports it.
	MkdirAll(ctx context.Context, path string) error

	// Location renders path as an rsync destination argument.
	Location(path string) string

	// ShellArgs returns the rsync arguments needed to reach the destination.
	ShellArgs() []string
}

// quote wraps s in single quotes for a POSIX shell.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
