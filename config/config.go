// Package config loads the transfer settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"
)

// Config represents the complete transfer configuration
type Config struct {
	// Local copies to a directory on this host instead of going through ssh.
	Local bool `yaml:"local"`
	// SourceRoot is the staging directory targets are resolved against.
	SourceRoot string `yaml:"source_root"`
	// StateDir holds the report database and the log file of the TUI.
	StateDir string         `yaml:"state_dir"`
	Workers  int            `yaml:"workers"`
	SSH      SSHConfig      `yaml:"ssh"`
	Transfer TransferConfig `yaml:"transfer"`
	Store    StoreConfig    `yaml:"store"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SSHConfig describes the remote host
type SSHConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	IdentityFile string `yaml:"identity_file"`
	// HostPublicKey is the base64 key as printed by ssh-keyscan
	HostPublicKey          string   `yaml:"host_public_key"`
	HostPublicKeyAlgorithm string   `yaml:"host_public_key_algorithm"`
	BatchMode              bool     `yaml:"batch_mode"`
	Options                []string `yaml:"options"`
}

// TransferConfig defines rsync behavior
type TransferConfig struct {
	Destination string `yaml:"destination"`
	Overwrite   bool   `yaml:"overwrite"`
	// Timeout is rsync's I/O timeout in seconds
	Timeout          int  `yaml:"timeout"`
	Compression      bool `yaml:"compression"`
	CompressionLevel int  `yaml:"compression_level"`
	Checksums        bool `yaml:"checksums"`
	Retries          int  `yaml:"retries"`
	// RetryInterval is in seconds
	RetryInterval int `yaml:"retry_interval"`
	// BWLimit is in KiB/s, 0 is unlimited
	BWLimit int `yaml:"bw_limit"`
	// DefaultOptions are passed to rsync first, Options after them
	DefaultOptions []string          `yaml:"default_options"`
	Options        []string          `yaml:"options"`
	UIDMap         map[uint32]uint32 `yaml:"uid_map,omitempty"`
	GIDMap         map[uint32]uint32 `yaml:"gid_map,omitempty"`
	// Verify compares CRC64 checksums after a local transfer
	Verify bool `yaml:"verify"`
}

// StoreConfig defines where reports are kept
type StoreConfig struct {
	Type   string `yaml:"type"` // bolt, s3
	Path   string `yaml:"path,omitempty"`
	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file,omitempty"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		SourceRoot: ".",
		StateDir:   ".siptransfer",
		Workers:    1,
		SSH: SSHConfig{
			Host:         "localhost",
			Port:         22,
			User:         "dcm",
			IdentityFile: "~/.ssh/id_rsa",
			BatchMode:    true,
			Options:      []string{},
		},
		Transfer: TransferConfig{
			Destination:      "/remote_storage",
			Timeout:          3,
			CompressionLevel: 6,
			Retries:          3,
			RetryInterval:    360,
			DefaultOptions:   []string{"-a", "--info=progress2"},
			Options:          []string{},
		},
		Store: StoreConfig{
			Type: "bolt",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults, applies the environment and validates the
// result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. Flags are enabled by "1".
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n == 1
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok {
			var opts []string
			if err := json.Unmarshal([]byte(v), &opts); err != nil {
				errs = append(errs, fmt.Errorf("%s: expected a JSON list of strings: %w", name, err))
				return
			}
			*dst = opts
		}
	}

	flag("LOCAL_TRANSFER", &c.Local)
	str("FS_MOUNT_POINT", &c.SourceRoot)
	str("SSH_HOSTNAME", &c.SSH.Host)
	num("SSH_PORT", &c.SSH.Port)
	str("SSH_HOST_PUBLIC_KEY", &c.SSH.HostPublicKey)
	str("SSH_HOST_PUBLIC_KEY_ALGORITHM", &c.SSH.HostPublicKeyAlgorithm)
	flag("SSH_BATCH_MODE", &c.SSH.BatchMode)
	str("SSH_USERNAME", &c.SSH.User)
	str("SSH_IDENTITY_FILE", &c.SSH.IdentityFile)
	list("SSH_CLIENT_OPTIONS", &c.SSH.Options)
	str("REMOTE_DESTINATION", &c.Transfer.Destination)
	flag("OVERWRITE_EXISTING", &c.Transfer.Overwrite)
	num("TRANSFER_TIMEOUT", &c.Transfer.Timeout)
	flag("USE_COMPRESSION", &c.Transfer.Compression)
	num("COMPRESSION_LEVEL", &c.Transfer.CompressionLevel)
	flag("VALIDATE_CHECKSUMS", &c.Transfer.Checksums)
	num("TRANSFER_RETRIES", &c.Transfer.Retries)
	num("TRANSFER_RETRY_INTERVAL", &c.Transfer.RetryInterval)
	list("TRANSFER_OPTIONS", &c.Transfer.Options)
	num("BW_LIMIT", &c.Transfer.BWLimit)

	return errors.Join(errs...)
}

// Validate checks if the configuration is valid. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if (c.SSH.HostPublicKey == "") != (c.SSH.HostPublicKeyAlgorithm == "") {
		errs = append(errs, errors.New("either none or both of ssh.host_public_key and ssh.host_public_key_algorithm must be set"))
	} else if c.SSH.HostPublicKey != "" {
		if err := validateHostKey(c.SSH.HostPublicKey, c.SSH.HostPublicKeyAlgorithm); err != nil {
			errs = append(errs, err)
		}
	}

	if !c.Local {
		if c.SSH.Host == "" {
			errs = append(errs, errors.New("ssh.host is required for remote transfers"))
		}
		if c.SSH.Port < 1 || c.SSH.Port > 65535 {
			errs = append(errs, fmt.Errorf("ssh.port %d is out of range", c.SSH.Port))
		}
	}

	if c.Transfer.Destination == "" {
		errs = append(errs, errors.New("transfer.destination is required"))
	}
	if c.Transfer.CompressionLevel < 0 || c.Transfer.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("transfer.compression_level %d must be between 0 and 9", c.Transfer.CompressionLevel))
	}
	if c.Transfer.Timeout < 0 {
		errs = append(errs, errors.New("transfer.timeout must not be negative"))
	}
	if c.Transfer.Retries < 0 {
		errs = append(errs, errors.New("transfer.retries must not be negative"))
	}
	if c.Transfer.RetryInterval < 0 {
		errs = append(errs, errors.New("transfer.retry_interval must not be negative"))
	}
	if c.Transfer.BWLimit < 0 {
		errs = append(errs, errors.New("transfer.bw_limit must not be negative"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}

	switch c.Store.Type {
	case "bolt":
	case "s3":
		if c.Store.Bucket == "" {
			errs = append(errs, errors.New("store.bucket is required for the s3 store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store type: %s", c.Store.Type))
	}

	return errors.Join(errs...)
}

// validateHostKey checks that key is a wire-format public key of the given algorithm.
func validateHostKey(key, algorithm string) error {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return fmt.Errorf("ssh.host_public_key is not valid base64: %w", err)
	}
	pub, err := ssh.ParsePublicKey(raw)
	if err != nil {
		return fmt.Errorf("ssh.host_public_key is not a public key: %w", err)
	}
	if pub.Type() != algorithm {
		return fmt.Errorf("ssh.host_public_key is of type %s, expected %s", pub.Type(), algorithm)
	}
	return nil
}

// IdentityPath returns the identity file with a leading "~" expanded.
func (s SSHConfig) IdentityPath() string {
	if s.IdentityFile == "~" || strings.HasPrefix(s.IdentityFile, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(s.IdentityFile, "~"))
		}
	}
	return s.IdentityFile
}

// TransferOptions returns the rsync default options followed by the extra ones.
func (t TransferConfig) TransferOptions() []string {
	opts := make([]string, 0, len(t.DefaultOptions)+len(t.Options))
	opts = append(opts, t.DefaultOptions...)
	return append(opts, t.Options...)
}

// StorePath is the bbolt database location.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.StateDir, "reports.db")
}

// Settings describes the effective transfer configuration.
func (c *Config) Settings() map[string]any {
	sshSettings := map[string]any{
		"host":       c.SSH.Host,
		"user":       c.SSH.User,
		"identity":   c.SSH.IdentityFile,
		"port":       strconv.Itoa(c.SSH.Port),
		"batch_mode": c.SSH.BatchMode,
		"options":    c.SSH.Options,
	}
	if c.SSH.HostPublicKey != "" {
		sshSettings["host_key"] = c.SSH.HostPublicKey
		sshSettings["host_key_algorithm"] = c.SSH.HostPublicKeyAlgorithm
	}

	return map[string]any{
		"transfer": map[string]any{
			"local":              c.Local,
			"destination":        c.Transfer.Destination,
			"overwrite_existing": c.Transfer.Overwrite,
			"validate_checksums": c.Transfer.Checksums,
			"ssh":                sshSettings,
			"rsync": map[string]any{
				"compression": map[string]any{
					"enabled": c.Transfer.Compression,
					"level":   c.Transfer.CompressionLevel,
				},
				"timeout": map[string]any{
					"duration": c.Transfer.Timeout,
				},
				"retry": map[string]any{
					"max_retries":    c.Transfer.Retries,
					"retry_interval": c.Transfer.RetryInterval,
				},
				"bw_limit": c.Transfer.BWLimit,
				"options":  c.Transfer.Options,
			},
		},
	}
}
