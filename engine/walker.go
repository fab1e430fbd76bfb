package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WalkItem is a regular file found under a walk root.
type WalkItem struct {
	// RelPath is relative to the walk root; empty when the root is itself a file.
	RelPath string
	Size    int64
}

// Walker traverses a local directory iteratively and sends every regular file to a channel.
// It avoids deep recursion to prevent stack overflows on very deep directory structures.
type Walker struct {
	Items chan<- WalkItem
}

// NewWalker creates a new iterative directory walker.
func NewWalker(items chan<- WalkItem) *Walker {
	return &Walker{Items: items}
}

// Walk starts an iterative (stack-based) walk of root. It does not close the channel.
func (w *Walker) Walk(ctx context.Context, root string) error {
	stat, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", root, err)
	}

	// If the root itself is just a file, we send one item and return.
	if !stat.IsDir() {
		return w.send(ctx, WalkItem{Size: stat.Size()})
	}

	stack := []string{""}
	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(filepath.Join(root, curr))
		if err != nil {
			return fmt.Errorf("failed to list directory %s: %w", filepath.Join(root, curr), err)
		}

		for _, entry := range entries {
			rel := filepath.Join(curr, entry.Name())
			if entry.IsDir() {
				stack = append(stack, rel)
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", rel, err)
			}
			if err := w.send(ctx, WalkItem{RelPath: rel, Size: info.Size()}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Walker) send(ctx context.Context, item WalkItem) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.Items <- item:
		return nil
	}
}
