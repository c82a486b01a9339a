// Package config loads the kycagent configuration: built-in defaults, then an
// optional YAML file, then KYCAGENT_* environment variables. Command-line
// flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"

	DefaultAPIURL       = "http://127.0.0.1:8787"
	DefaultClientID     = "12345"
	DefaultDatabase     = "kyc_db"
	DefaultTimeout      = 60 * time.Second
	DefaultImageHostURL = "https://api.imgbb.com/1/upload"
	DefaultSandboxAddr  = "127.0.0.1:8787"
	DefaultLogLevel     = "info"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIURL          = "KYCAGENT_API_URL"
	EnvClientID        = "KYCAGENT_CLIENT_ID"
	EnvDatabase        = "KYCAGENT_DATABASE"
	EnvTimeout         = "KYCAGENT_TIMEOUT"
	EnvImageHostURL    = "KYCAGENT_IMAGE_HOST_URL"
	EnvImageHostKey    = "KYCAGENT_IMAGE_HOST_KEY"
	EnvDataDir         = "KYCAGENT_DATA_DIR"
	EnvStorePassphrase = "KYCAGENT_STORE_PASSPHRASE"
)

// SandboxUser is an account seeded into the sandbox server.
type SandboxUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Sandbox configures the local fake API server.
type Sandbox struct {
	Addr     string        `yaml:"addr"`
	TokenTTL time.Duration `yaml:"token_ttl"`
	Users    []SandboxUser `yaml:"users"`
}

// Config is the complete client configuration.
type Config struct {
	APIURL       string        `yaml:"api_url"`
	ClientID     string        `yaml:"client_id"`
	Database     string        `yaml:"database"`
	Timeout      time.Duration `yaml:"timeout"`
	ImageHostURL string        `yaml:"image_host_url"`
	ImageHostKey string        `yaml:"image_host_key"`

	// DataDir holds the token store and the device secret.
	DataDir string `yaml:"data_dir"`
	// StorePassphrase unlocks the token store. When empty a random device
	// secret kept in DataDir is used instead.
	StorePassphrase string `yaml:"store_passphrase"`
	LogLevel        string `yaml:"log_level"`

	Sandbox Sandbox `yaml:"sandbox"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIURL:       DefaultAPIURL,
		ClientID:     DefaultClientID,
		Database:     DefaultDatabase,
		Timeout:      DefaultTimeout,
		ImageHostURL: DefaultImageHostURL,
		DataDir:      DefaultDataDir(),
		LogLevel:     DefaultLogLevel,
		Sandbox: Sandbox{
			Addr:     DefaultSandboxAddr,
			TokenTTL: 15 * time.Minute,
		},
	}
}

// DefaultDataDir is the per-user configuration directory, or ./.kycagent
// when none is available.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".kycagent"
	}
	return filepath.Join(dir, "kycagent")
}

// Load returns the defaults overlaid with the YAML file at path. A missing
// file is only an error when required is set. ${VAR} references in the file
// are expanded from the environment.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	data = []byte(expandEnvVars(string(data)))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ApplyEnv overrides fields from KYCAGENT_* variables found by lookup
// (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		EnvAPIURL:          &c.APIURL,
		EnvClientID:        &c.ClientID,
		EnvDatabase:        &c.Database,
		EnvImageHostURL:    &c.ImageHostURL,
		EnvImageHostKey:    &c.ImageHostKey,
		EnvDataDir:         &c.DataDir,
		EnvStorePassphrase: &c.StorePassphrase,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	if v, ok := lookup(EnvTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.APIURL) == "" {
		errs = append(errs, "api_url is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		errs = append(errs, "client_id is required")
	}
	if strings.TrimSpace(c.ImageHostURL) == "" {
		errs = append(errs, "image_host_url is required")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// StorePath is the bbolt file holding the token store.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "store.db")
}

// SecretPath is the device secret used when no passphrase is configured.
func (c *Config) SecretPath() string {
	return filepath.Join(c.DataDir, "device.secret")
}
