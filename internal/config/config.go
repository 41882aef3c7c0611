package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"NewsletterChat/internal/render"
)

const (
	envConfigFile = "NEWSLETTERCHAT_CONFIG"
	envBackendURL = "NEWSLETTERCHAT_BACKEND_URL"
	envTimeout    = "NEWSLETTERCHAT_TIMEOUT"
	envStateDB    = "NEWSLETTERCHAT_STATE_DB"
	envLogDir     = "NEWSLETTERCHAT_LOG_DIR"
	envUpstream   = "NEWSLETTERCHAT_UPSTREAM"
	envRenderMode = "NEWSLETTERCHAT_RENDER_MODE"

	DefaultBackendURL = "http://localhost:8000"
	DefaultTimeout    = 30 * time.Second
	DefaultUpstream   = "openai"
)

// Config holds application configuration
type Config struct {
	BackendURL  string        `toml:"backend_url" yaml:"backend_url"`
	Timeout     time.Duration `toml:"timeout" yaml:"timeout"`
	StateDB     string        `toml:"state_db" yaml:"state_db"`
	LogDir      string        `toml:"log_dir" yaml:"log_dir"`
	Upstream    string        `toml:"upstream" yaml:"upstream"`
	RenderMode  string        `toml:"render_mode" yaml:"render_mode"`
	RenderWidth int           `toml:"render_width" yaml:"render_width"`
	Telemetry   bool          `toml:"telemetry" yaml:"telemetry"`

	// Set from flags only
	SessionID string `toml:"-" yaml:"-"`
	Debug     bool   `toml:"-" yaml:"-"`
	Ephemeral bool   `toml:"-" yaml:"-"`
}

// Load builds the configuration from defaults, the TOML file and the
// environment. An empty path means $NEWSLETTERCHAT_CONFIG, then
// ~/.config/newsletterchat/config.toml. Files ending in .yaml or .yml are
// read as YAML. A missing default file is not an error; a missing explicit
// one is.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(envConfigFile)
		explicit = path != ""
	}
	if !explicit {
		path = defaultConfigPath()
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := decodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
			}
		} else if explicit {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := overrideByEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend url %q: %w", c.BackendURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid backend url %q: scheme must be http or https", c.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid backend url %q: missing host", c.BackendURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s: must be positive", c.Timeout)
	}
	if !render.ValidMode(c.RenderMode) {
		return fmt.Errorf("invalid render mode %q: want %q or %q", c.RenderMode, render.ModeBlocks, render.ModeGlamour)
	}
	if strings.TrimSpace(c.Upstream) == "" {
		return fmt.Errorf("upstream must not be empty")
	}
	return nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.DecodeFile(path, cfg)
		return err
	}
}

func defaultConfig() *Config {
	dir := dataDir()
	return &Config{
		BackendURL:  DefaultBackendURL,
		Timeout:     DefaultTimeout,
		StateDB:     filepath.Join(dir, "state.db"),
		LogDir:      filepath.Join(dir, "logs"),
		Upstream:    DefaultUpstream,
		RenderMode:  render.ModeBlocks,
		RenderWidth: 80,
		Telemetry:   true,
	}
}

func overrideByEnv(cfg *Config) error {
	cfg.BackendURL = getEnv(envBackendURL, cfg.BackendURL)
	cfg.StateDB = getEnv(envStateDB, cfg.StateDB)
	cfg.LogDir = getEnv(envLogDir, cfg.LogDir)
	cfg.Upstream = getEnv(envUpstream, cfg.Upstream)
	cfg.RenderMode = getEnv(envRenderMode, cfg.RenderMode)

	if v := os.Getenv(envTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envTimeout, err)
		}
		cfg.Timeout = d
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "newsletterchat", "config.toml")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".newsletterchat"
	}
	return filepath.Join(home, ".newsletterchat")
}
