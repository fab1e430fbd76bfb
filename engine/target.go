package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrTargetOutsideRoot is returned when a target resolves outside its root.
	ErrTargetOutsideRoot = errors.New("target is outside of the source root")

	// ErrTargetNotFound is returned when a target is neither a directory nor a regular file.
	ErrTargetNotFound = errors.New("target does not exist")
)

// Target is a SIP on the local staging filesystem. Path is relative to Root.
type Target struct {
	Root string `json:"-"`
	Path string `json:"path"`
}

// NewTarget resolves rel against root and checks that it exists.
func NewTarget(root, rel string) (Target, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Target{}, fmt.Errorf("failed to resolve root %q: %w", root, err)
	}

	full := filepath.Join(absRoot, rel)
	if filepath.IsAbs(rel) {
		full = filepath.Clean(rel)
	}
	relPath, err := filepath.Rel(absRoot, full)
	if err != nil || outside(relPath) {
		return Target{}, fmt.Errorf("%w: %q", ErrTargetOutsideRoot, rel)
	}

	info, err := os.Stat(full)
	if err != nil || !(info.IsDir() || info.Mode().IsRegular()) {
		return Target{}, fmt.Errorf("%w: %q", ErrTargetNotFound, rel)
	}

	// symlinks on the way must not lead out of the root
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return Target{}, fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	realFull, err := filepath.EvalSymlinks(full)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q", ErrTargetNotFound, rel)
	}
	if realRel, err := filepath.Rel(realRoot, realFull); err != nil || outside(realRel) {
		return Target{}, fmt.Errorf("%w: %q", ErrTargetOutsideRoot, rel)
	}

	return Target{Root: absRoot, Path: relPath}, nil
}

// Abs returns the absolute path of the target.
func (t Target) Abs() string {
	return filepath.Join(t.Root, t.Path)
}

// Name returns the final path component, used as the destination name.
func (t Target) Name() string {
	return filepath.Base(t.Abs())
}

// TransferConfig is the request for one job.
type TransferConfig struct {
	Target Target `json:"target"`
}

func outside(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
