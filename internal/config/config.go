// Package config loads client settings from a YAML file, a dotenv file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load.
const (
	EnvConfig    = "VIBEMEET_CONFIG"
	EnvServerURL = "VIBEMEET_SERVER_URL"
	EnvStateDir  = "VIBEMEET_STATE_DIR"
	EnvDebug     = "VIBEMEET_DEBUG"
	EnvTelemetry = "VIBEMEET_TELEMETRY"
)

const (
	DefaultServerURL = "http://localhost:8080"
	DefaultTimeout   = 30 * time.Second
	appDir           = ".vibemeet"
	configFile       = "config.yaml"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the client configuration.
type Config struct {
	// ServerURL is the origin serving both the auth and room APIs.
	ServerURL string        `yaml:"server_url"`
	StateDir  string        `yaml:"state_dir"`
	Timeout   time.Duration `yaml:"timeout"`
	Debug     bool          `yaml:"debug"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Media     MediaConfig     `yaml:"media"`
}

// TelemetryConfig controls OTLP export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// MediaConfig tunes the media session.
type MediaConfig struct {
	// AwaitAttempts and AwaitInterval bound how long the client waits for a
	// media capability to become available.
	AwaitAttempts uint          `yaml:"await_attempts"`
	AwaitInterval time.Duration `yaml:"await_interval"`

	ICEServers        []string      `yaml:"ice_servers"`
	CandidatePolls    uint          `yaml:"candidate_polls"`
	CandidateInterval time.Duration `yaml:"candidate_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerURL: DefaultServerURL,
		StateDir:  DefaultStateDir(),
		Timeout:   DefaultTimeout,
		Telemetry: TelemetryConfig{ServiceName: "vibemeet"},
		Media: MediaConfig{
			AwaitAttempts:     100,
			AwaitInterval:     100 * time.Millisecond,
			CandidatePolls:    50,
			CandidateInterval: 500 * time.Millisecond,
		},
	}
}

// DefaultStateDir is ~/.vibemeet, or .vibemeet in the working directory
// when the home directory cannot be determined.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return appDir
	}
	return filepath.Join(home, appDir)
}

// DefaultPath is the config file consulted when none is named.
func DefaultPath() string {
	return filepath.Join(DefaultStateDir(), configFile)
}

// LoadDotEnv loads the given dotenv files into the process environment.
// Missing files are skipped and existing variables are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the config file at path. An empty path falls back to
// VIBEMEET_CONFIG and then to DefaultPath; only an explicitly named file
// must exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if path = os.Getenv(EnvConfig); path != "" {
			explicit = true
		} else {
			path = DefaultPath()
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvServerURL); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv(EnvStateDir); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvDebug, err)
		}
		c.Debug = b
	}
	if v := os.Getenv(EnvTelemetry); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvTelemetry, err)
		}
		c.Telemetry.Enabled = b
	}
	return nil
}

// Validate checks the settings the client cannot run without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: server_url must be an http(s) URL, got %q", ErrInvalidConfig, c.ServerURL)
	}
	if c.StateDir == "" {
		return fmt.Errorf("%w: state_dir is required", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.Media.AwaitAttempts == 0 || c.Media.AwaitInterval <= 0 {
		return fmt.Errorf("%w: media await settings must be positive", ErrInvalidConfig)
	}
	return nil
}
