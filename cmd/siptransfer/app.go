package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franksops/siptransfer/config"
	"github.com/franksops/siptransfer/engine"
	"github.com/franksops/siptransfer/executor"
	"github.com/franksops/siptransfer/logging"
	"github.com/franksops/siptransfer/provider"
	"github.com/franksops/siptransfer/remote"
	"github.com/franksops/siptransfer/store"
)

const appName = "siptransfer"

func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	return cfg, nil
}

// newLogger writes to the configured log file, to a file in the state
// directory while the TUI owns the terminal, or to stderr.
func newLogger(cfg *config.Config, tui bool) (*slog.Logger, func(), error) {
	path := cfg.Logging.File
	if path == "" && tui {
		path = filepath.Join(cfg.StateDir, appName+".log")
	}
	if path == "" {
		return logging.New(appName, cfg.Logging.Level, nil), func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logging.New(appName, cfg.Logging.Level, f), func() { f.Close() }, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case "s3":
		return store.NewS3Store(ctx, cfg.Store.Bucket, cfg.Store.Prefix)
	default:
		path := cfg.StorePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		return store.NewBoltStore(path)
	}
}

func newClient(cfg *config.Config, runner executor.Runner) *remote.Client {
	client := remote.NewClient(cfg.SSH.Host, runner)
	client.User = cfg.SSH.User
	client.Port = cfg.SSH.Port
	client.IdentityFile = cfg.SSH.IdentityPath()
	client.BatchMode = cfg.SSH.BatchMode
	client.DefaultOptions = cfg.SSH.Options
	if cfg.SSH.HostPublicKey != "" {
		client.Fingerprint = &remote.Fingerprint{
			Algorithm: cfg.SSH.HostPublicKeyAlgorithm,
			PublicKey: cfg.SSH.HostPublicKey,
		}
	}
	return client
}

func newManager(cfg *config.Config, client *remote.Client, runner executor.Runner) *engine.TransferManager {
	var p provider.Provider
	if cfg.Local {
		p = provider.NewLocalProvider()
	} else {
		p = provider.NewRemoteProvider(client)
	}
	m := engine.NewTransferManager(p, runner)
	m.DefaultOptions = cfg.Transfer.TransferOptions()
	return m
}

func jobSettings(cfg *config.Config) engine.JobSettings {
	level := cfg.Transfer.CompressionLevel
	settings := engine.JobSettings{
		DestinationRoot: cfg.Transfer.Destination,
		Local:           cfg.Local,
		Overwrite:       cfg.Transfer.Overwrite,
		Retries:         cfg.Transfer.Retries,
		RetryInterval:   time.Duration(cfg.Transfer.RetryInterval) * time.Second,
		Verify:          cfg.Transfer.Verify,
		Transfer: engine.Options{
			Timeout:          time.Duration(cfg.Transfer.Timeout) * time.Second,
			Compression:      cfg.Transfer.Compression,
			CompressionLevel: &level,
			Checksum:         cfg.Transfer.Checksums,
			BWLimit:          cfg.Transfer.BWLimit,
		},
	}
	if len(cfg.Transfer.UIDMap) > 0 || len(cfg.Transfer.GIDMap) > 0 {
		settings.Transfer.Ownership = engine.NewOwnership(
			engine.WithUIDMapping(engine.UIDMapping(cfg.Transfer.UIDMap)),
			engine.WithGIDMapping(engine.GIDMapping(cfg.Transfer.GIDMap)),
		)
	}
	return settings
}

// toolVersions returns the ssh and rsync version lines, "?" for a tool that
// cannot be run.
func toolVersions(ctx context.Context, runner executor.Runner) (sshVersion, rsyncVersion string) {
	sshVersion, rsyncVersion = "?", "?"

	// ssh prints its version on stderr
	if res, err := runner.Run(ctx, "ssh", []string{"-V"}); err == nil && res.Success() {
		if v := strings.TrimSpace(res.Stderr); v != "" {
			sshVersion = v
		}
	}
	if res, err := runner.Run(ctx, "rsync", []string{"--version"}); err == nil && res.Success() {
		if line, _, _ := strings.Cut(res.Stdout, "\n"); strings.TrimSpace(line) != "" {
			rsyncVersion = strings.TrimSpace(line)
		}
	}
	return sshVersion, rsyncVersion
}
