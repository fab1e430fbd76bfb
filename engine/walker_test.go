package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func collect(t *testing.T, root string) []WalkItem {
	t.Helper()
	items := make(chan WalkItem, 100)
	if err := NewWalker(items).Walk(context.Background(), root); err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	close(items)

	var out []WalkItem
	for item := range items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out
}

func TestWalker_Walk(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "data", "deep", "er"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"bagit.txt":          "BagIt",
		"data/a.txt":         "a",
		"data/deep/er/b.txt": "bb",
	}
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(root, rel), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink("a.txt", filepath.Join(root, "data", "link")); err != nil {
		t.Fatal(err)
	}

	items := collect(t, root)
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d: %+v", len(items), items)
	}

	want := []WalkItem{
		{RelPath: "bagit.txt", Size: 5},
		{RelPath: filepath.Join("data", "a.txt"), Size: 1},
		{RelPath: filepath.Join("data", "deep", "er", "b.txt"), Size: 2},
	}
	for i, item := range items {
		if item != want[i] {
			t.Errorf("item %d = %+v; want %+v", i, item, want[i])
		}
	}
}

func TestWalker_SingleFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "single.txt")
	if err := os.WriteFile(file, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	items := collect(t, file)
	if len(items) != 1 || items[0].RelPath != "" || items[0].Size != 5 {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestWalker_Cancelled(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// unbuffered and never read, so only cancellation can end the walk
	items := make(chan WalkItem)
	if err := NewWalker(items).Walk(ctx, root); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestWalker_Missing(t *testing.T) {
	items := make(chan WalkItem)
	if err := NewWalker(items).Walk(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}
