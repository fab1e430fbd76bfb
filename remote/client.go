// Package remote describes an ssh connection and runs commands through it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/franksops/siptransfer/executor"
)

// ErrNoHost is returned when a remote operation is requested without a host.
var ErrNoHost = errors.New("this action requires a host")

// Fingerprint pins the remote host key. Algorithm is an ssh key type such as
// "ssh-ed25519"; PublicKey is the base64 key as printed by ssh-keyscan.
type Fingerprint struct {
	Algorithm string
	PublicKey string
}

// Client is a read-only ssh connection descriptor. It holds no connection
// state and is safe to share between jobs.
type Client struct {
	Host         string
	User         string
	Port         int // 0 means the ssh default
	IdentityFile string
	Fingerprint  *Fingerprint
	BatchMode    bool
	// DefaultOptions are passed to ssh before any generated arguments.
	DefaultOptions []string

	runner executor.Runner
}

// NewClient creates a Client for host that runs ssh through runner.
// A nil runner uses executor.New().
func NewClient(host string, runner executor.Runner) *Client {
	if runner == nil {
		runner = executor.New()
	}
	return &Client{Host: host, runner: runner}
}

// Command is the ssh client executable.
func (c *Client) Command() string {
	return "ssh"
}

// IdentityArgs returns ["-i", <absolute key path>], or nothing without a key file.
func (c *Client) IdentityArgs() []string {
	if c.IdentityFile == "" {
		return nil
	}
	path, err := filepath.Abs(c.IdentityFile)
	if err != nil {
		path = c.IdentityFile
	}
	return []string{"-i", path}
}

// PortArgs returns ["-p", <port>], or nothing without a port.
func (c *Client) PortArgs() []string {
	if c.Port == 0 {
		return nil
	}
	return []string{"-p", strconv.Itoa(c.Port)}
}

// FingerprintArgs pins host key verification to a KnownHostsCommand that
// prints "<host> <algorithm> <key>", so no known_hosts file is consulted.
// quote wraps the command in single quotes for use inside another command line.
func (c *Client) FingerprintArgs(quote bool) []string {
	if c.Fingerprint == nil {
		return nil
	}
	q := ""
	if quote {
		q = "'"
	}
	return []string{
		"-o",
		fmt.Sprintf(`KnownHostsCommand=%s/usr/bin/env printf "%%H %s %s"%s`,
			q, c.Fingerprint.Algorithm, c.Fingerprint.PublicKey, q),
	}
}

// BatchModeArgs disables interactive prompts when batch mode is enabled.
func (c *Client) BatchModeArgs() []string {
	if !c.BatchMode {
		return nil
	}
	return []string{"-o", "BatchMode=yes"}
}

// Destination returns "user@host", "host", or "" without a host.
func (c *Client) Destination() string {
	if c.Host == "" {
		return ""
	}
	if c.User == "" {
		return c.Host
	}
	return c.User + "@" + c.Host
}

// ConnectionArgs returns every generated ssh argument in a fixed order:
// default options, fingerprint, batch mode, identity, port.
func (c *Client) ConnectionArgs(quoteFingerprint bool) []string {
	var args []string
	args = append(args, c.DefaultOptions...)
	args = append(args, c.FingerprintArgs(quoteFingerprint)...)
	args = append(args, c.BatchModeArgs()...)
	args = append(args, c.IdentityArgs()...)
	args = append(args, c.PortArgs()...)
	return args
}

// ShellCommand renders ssh with its connection arguments as a single string,
// suitable for rsync's -e option. Arguments are in ConnectionArgs order and
// single-quoted where rsync would otherwise split them.
func (c *Client) ShellCommand() string {
	parts := []string{c.Command()}
	parts = append(parts, quoteArgs(c.DefaultOptions)...)
	parts = append(parts, c.FingerprintArgs(true)...)
	parts = append(parts, c.BatchModeArgs()...)
	parts = append(parts, quoteArgs(c.IdentityArgs())...)
	parts = append(parts, c.PortArgs()...)
	return strings.Join(parts, " ")
}

func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = quoteArg(arg)
	}
	return out
}

func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\$`;&|<>*?()[]{}~#") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// Query runs command on the remote host. A nonzero exit code is reported in
// the result, not as an error.
func (c *Client) Query(ctx context.Context, command string) (*executor.Result, error) {
	if c.Host == "" {
		return nil, ErrNoHost
	}
	args := c.ConnectionArgs(false)
	args = append(args, c.Destination(), command)

	runner := c.runner
	if runner == nil {
		runner = executor.New()
	}
	return runner.Run(ctx, c.Command(), args)
}
