package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/franksops/siptransfer/executor"
	"github.com/franksops/siptransfer/remote"
)

func newFakeRemote(handler func(cmd string) *executor.Result) (*RemoteProvider, *executor.Fake) {
	fake := &executor.Fake{Handler: func(call executor.Call) (*executor.Result, error) {
		return handler(call.Args[len(call.Args)-1]), nil
	}}
	client := remote.NewClient("example.org", fake)
	client.User = "dcm"
	return NewRemoteProvider(client), fake
}

func TestRemoteProvider_Exists(t *testing.T) {
	p, fake := newFakeRemote(func(cmd string) *executor.Result {
		if cmd == "[ -d '/remote_storage/sip' ]" {
			return &executor.Result{}
		}
		return &executor.Result{ExitCode: 1}
	})
	ctx := context.Background()

	ok, err := p.DirExists(ctx, "/remote_storage/sip")
	if err != nil || !ok {
		t.Errorf("DirExists = %v, %v; want true, nil", ok, err)
	}
	ok, err = p.FileExists(ctx, "/remote_storage/sip")
	if err != nil || ok {
		t.Errorf("FileExists = %v, %v; want false, nil", ok, err)
	}

	calls := fake.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if got := calls[1].Args[len(calls[1].Args)-1]; got != "[ -f '/remote_storage/sip' ]" {
		t.Errorf("unexpected file test command %q", got)
	}
	if got := calls[0].Args[len(calls[0].Args)-2]; got != "dcm@example.org" {
		t.Errorf("unexpected destination %q", got)
	}
}

func TestRemoteProvider_Remove(t *testing.T) {
	p, _ := newFakeRemote(func(cmd string) *executor.Result {
		if cmd != `rm -rf '/remote_storage/it'\''s'` {
			return &executor.Result{ExitCode: 2, Stderr: "unexpected " + cmd}
		}
		return &executor.Result{}
	})

	res, err := p.Remove(context.Background(), "/remote_storage/it's")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("Remove exit code %d: %s", res.ExitCode, res.Stderr)
	}
}

func TestRemoteProvider_QueryError(t *testing.T) {
	fake := &executor.Fake{Handler: func(executor.Call) (*executor.Result, error) {
		return &executor.Result{ExitCode: -1}, errors.New("ssh not found")
	}}
	p := NewRemoteProvider(remote.NewClient("example.org", fake))

	if _, err := p.DirExists(context.Background(), "/x"); err == nil {
		t.Error("expected error when ssh cannot be started")
	}
}

func TestRemoteProvider_LocationAndShell(t *testing.T) {
	client := remote.NewClient("example.org", &executor.Fake{})
	client.User = "dcm"
	client.Port = 2222
	p := NewRemoteProvider(client)

	if loc := p.Location("/remote_storage/sip"); loc != "dcm@example.org:/remote_storage/sip" {
		t.Errorf("unexpected location %q", loc)
	}

	args := p.ShellArgs()
	if len(args) != 2 || args[0] != "-e" || args[1] != "ssh -p 2222" {
		t.Errorf("unexpected shell args %q", args)
	}
	if err := p.MkdirAll(context.Background(), "/remote_storage"); err != nil {
		t.Errorf("MkdirAll should be a no-op, got %v", err)
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"/a/b": "'/a/b'",
		"it's": `'it'\''s'`,
		"a b":  "'a b'",
	}
	for in, want := range tests {
		if got := quote(in); got != want {
			t.Errorf("quote(%q) = %q; want %q", in, got, want)
		}
	}
}
