// Package config loads the sunsync configuration file. The file is YAML,
// lives at ~/.sunsync/config.yaml by default, and every field can also be
// overridden by a command-line flag.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v3"
)

var ErrConfig = errors.New("invalid configuration")

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %q: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// Duration wraps time.Duration so YAML values like "500ms" or "2s" parse
// directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	// Endpoint is the base URL of the streaming host, e.g.
	// https://localhost:47990.
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// AppsFile is the local catalog to reconcile.
	AppsFile string `yaml:"apps_file"`

	// Cache selects the baseline store: empty for the default file, a
	// path or file:// URL, memory://, or a postgres:// DSN.
	Cache string `yaml:"cache"`

	// InsecureTLS defaults to true: streaming hosts ship self-signed
	// certificates.
	InsecureTLS *bool `yaml:"insecure_tls"`

	Timeout     Duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
	RetryBase   Duration `yaml:"retry_base"`
	RetryMax    Duration `yaml:"retry_max"`

	LogFile string `yaml:"log_file"`

	// ConflictResolution is manual, local-wins, or server-wins.
	ConflictResolution string `yaml:"conflict_resolution"`

	// TwoWay enables the three-way reconciliation engine.
	TwoWay bool `yaml:"two_way"`
}

// DefaultPath returns ~/.sunsync/config.yaml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".sunsync", "config.yaml"), nil
}

// Load reads and parses the config file at path, or the default path when
// path is empty. A missing default file yields a zero Config; a missing
// explicit file is an error.
func Load(fs afero.Fs, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		defaultPath, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields a sync run depends on. Flag overrides are
// merged in before this runs.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return &ConfigError{Field: "endpoint", Reason: "required"}
	}
	parsed, err := url.Parse(c.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &ConfigError{Field: "endpoint", Reason: "must be an absolute http(s) URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ConfigError{Field: "endpoint", Reason: fmt.Sprintf("unsupported scheme %q", parsed.Scheme)}
	}
	if c.Username == "" {
		return &ConfigError{Field: "username", Reason: "required"}
	}
	if c.Password == "" {
		return &ConfigError{Field: "password", Reason: "required"}
	}
	if c.AppsFile == "" {
		return &ConfigError{Field: "apps_file", Reason: "required"}
	}
	if c.MaxAttempts < 0 {
		return &ConfigError{Field: "max_attempts", Reason: "must not be negative"}
	}
	if c.Timeout < 0 || c.RetryBase < 0 || c.RetryMax < 0 {
		return &ConfigError{Field: "timeout", Reason: "durations must not be negative"}
	}
	return nil
}

// Insecure reports the effective TLS verification setting.
func (c *Config) Insecure() bool {
	if c.InsecureTLS == nil {
		return true
	}
	return *c.InsecureTLS
}
