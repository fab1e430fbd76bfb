package provider

import (
	"context"
	"fmt"

	"github.com/franksops/siptransfer/executor"
	"github.com/franksops/siptransfer/remote"
)

// ensure interface is implemented
var _ Provider = (*RemoteProvider)(nil)

// RemoteProvider implements Provider on a host reached through ssh.
// Every check is a command run with remote.Client.Query.
type RemoteProvider struct {
	client *remote.Client
}

// NewRemoteProvider creates a RemoteProvider on top of client.
func NewRemoteProvider(client *remote.Client) *RemoteProvider {
	return &RemoteProvider{client: client}
}

// Client returns the underlying connection descriptor.
func (p *RemoteProvider) Client() *remote.Client {
	return p.client
}

func (p *RemoteProvider) test(ctx context.Context, flag, path string) (bool, error) {
	res, err := p.client.Query(ctx, fmt.Sprintf("[ %s %s ]", flag, quote(path)))
	if err != nil {
		return false, fmt.Errorf("failed to query %q: %w", path, err)
	}
	return res.ExitCode == 0, nil
}

func (p *RemoteProvider) DirExists(ctx context.Context, path string) (bool, error) {
	return p.test(ctx, "-d", path)
}

func (p *RemoteProvider) FileExists(ctx context.Context, path string) (bool, error) {
	return p.test(ctx, "-f", path)
}

// Remove runs `rm -rf` on the remote host and returns its result.
func (p *RemoteProvider) Remove(ctx context.Context, path string) (*executor.Result, error) {
	res, err := p.client.Query(ctx, "rm -rf "+quote(path))
	if err != nil {
		return res, fmt.Errorf("failed to remove %q: %w", path, err)
	}
	return res, nil
}

// MkdirAll is a no-op, the remote destination root is expected to exist.
func (p *RemoteProvider) MkdirAll(ctx context.Context, path string) error {
	return nil
}

// Location returns "<user@host>:<path>".
func (p *RemoteProvider) Location(path string) string {
	return p.client.Destination() + ":" + path
}

// ShellArgs tunnels rsync through ssh with the client's connection arguments.
func (p *RemoteProvider) ShellArgs() []string {
	return []string{"-e", p.client.ShellCommand()}
}
