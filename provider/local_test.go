package provider

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestLocalProvider_Exists(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalProvider()
	ctx := context.Background()

	dir := filepath.Join(tempBase, "sip")
	file := filepath.Join(tempBase, "file.txt")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path     string
		wantDir  bool
		wantFile bool
	}{
		{dir, true, false},
		{file, false, true},
		{filepath.Join(tempBase, "missing"), false, false},
	}

	for _, tt := range tests {
		isDir, err := p.DirExists(ctx, tt.path)
		if err != nil {
			t.Fatalf("DirExists(%q) failed: %v", tt.path, err)
		}
		if isDir != tt.wantDir {
			t.Errorf("DirExists(%q) = %v; want %v", tt.path, isDir, tt.wantDir)
		}

		isFile, err := p.FileExists(ctx, tt.path)
		if err != nil {
			t.Fatalf("FileExists(%q) failed: %v", tt.path, err)
		}
		if isFile != tt.wantFile {
			t.Errorf("FileExists(%q) = %v; want %v", tt.path, isFile, tt.wantFile)
		}
	}
}

func TestLocalProvider_Remove(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalProvider()
	ctx := context.Background()

	dir := filepath.Join(tempBase, "sip")
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data", "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(tempBase, "file.txt")
	if err := os.WriteFile(file, []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}
	fifo := filepath.Join(tempBase, "fifo")
	if err := syscall.Mkfifo(fifo, 0600); err != nil {
		t.Fatal(err)
	}

	for _, target := range []string{dir, file, fifo} {
		res, err := p.Remove(ctx, target)
		if err != nil {
			t.Fatalf("Remove(%q) failed: %v", target, err)
		}
		if res.ExitCode != 0 {
			t.Errorf("Remove(%q) exit code = %d; want 0", target, res.ExitCode)
		}
		if _, err := os.Lstat(target); !os.IsNotExist(err) {
			t.Errorf("expected %q to be removed", target)
		}
	}

	// removing again is still a success
	res, err := p.Remove(ctx, dir)
	if err != nil || res.ExitCode != 0 {
		t.Errorf("expected idempotent remove, got res=%+v err=%v", res, err)
	}
}

func TestLocalProvider_MkdirAllAndLocation(t *testing.T) {
	tempBase := t.TempDir()
	p := NewLocalProvider()

	root := filepath.Join(tempBase, "a", "b", "c")
	if err := p.MkdirAll(context.Background(), root); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if ok, _ := p.DirExists(context.Background(), root); !ok {
		t.Errorf("expected %q to exist", root)
	}

	if loc := p.Location(root); loc != root {
		t.Errorf("Location(%q) = %q; want unchanged", root, loc)
	}
	if args := p.ShellArgs(); len(args) != 0 {
		t.Errorf("expected no shell args, got %v", args)
	}
}

func TestLocalProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLocalProvider().DirExists(ctx, "/"); err == nil {
		t.Error("expected error on cancelled context")
	}
}
