package provider

import (
	"context"
	"os"
	"path/filepath"

	"github.com/franksops/siptransfer/executor"
)

// ensure interface is implemented
var _ Provider = (*LocalProvider)(nil)

// LocalProvider implements the Provider interface for posix-compliant local filesystems.
type LocalProvider struct{}

// NewLocalProvider creates a new LocalProvider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (p *LocalProvider) DirExists(ctx context.Context, path string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	return info.IsDir(), nil
}

func (p *LocalProvider) FileExists(ctx context.Context, path string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	return info.Mode().IsRegular(), nil
}

// Remove deletes a directory tree, a file or a FIFO. The result mimics `rm -rf`:
// exit code 0 on success, 1 with the error text on stderr otherwise.
func (p *LocalProvider) Remove(ctx context.Context, path string) (*executor.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := os.RemoveAll(filepath.Clean(path)); err != nil {
		return &executor.Result{ExitCode: 1, Stderr: err.Error()}, nil
	}
	return &executor.Result{}, nil
}

func (p *LocalProvider) MkdirAll(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return os.MkdirAll(path, 0755)
}

// Location returns path unchanged.
func (p *LocalProvider) Location(path string) string {
	return path
}

// ShellArgs is empty, rsync copies locally.
func (p *LocalProvider) ShellArgs() []string {
	return nil
}
