package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen       = "0.0.0.0:8080"
	defaultConcurrency  = 10
	defaultFetchTimeout = 30 * time.Second
	defaultUserAgent    = "icsbusy/0.1"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultRefresh      = "*/5 * * * *"
)

// FeedConfig is one calendar feed watched in the background.
type FeedConfig struct {
	// Label keys the feed in results and metrics.
	Label string `yaml:"label" json:"label"`
	// URL is the ICS endpoint (http, https or webcal).
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Concurrency bounds how many feeds one batch fetches at once.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// FetchTimeout bounds a single feed request, body included.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`

	// UserAgent is sent with every feed request.
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// LogFormat is "text" (colored, for terminals) or "json".
	LogFormat string `yaml:"log_format" json:"log_format"`

	// Refresh is a cron-style schedule (e.g. "*/5 * * * *") for the
	// background watcher. It only matters when Feeds is non-empty.
	Refresh string `yaml:"refresh" json:"refresh"`

	// Feeds are evaluated periodically by the watcher.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health and /metrics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Concurrency:  defaultConcurrency,
		FetchTimeout: defaultFetchTimeout,
		UserAgent:    defaultUserAgent,
		LogLevel:     defaultLogLevel,
		LogFormat:    defaultLogFormat,
		Refresh:      defaultRefresh,
		Feeds:        []FeedConfig{},
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		c.LogFormat = defaultLogFormat
	}
	if c.Refresh == "" {
		c.Refresh = defaultRefresh
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
}

// Validate reports configuration errors Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Refresh); err != nil {
		return fmt.Errorf("config: refresh %q: %w", c.Refresh, err)
	}
	seen := make(map[string]struct{}, len(c.Feeds))
	for i, f := range c.Feeds {
		if f.Label == "" {
			return fmt.Errorf("config: feeds[%d]: empty label", i)
		}
		if f.URL == "" {
			return fmt.Errorf("config: feeds[%d] (%s): empty url", i, f.Label)
		}
		if _, dup := seen[f.Label]; dup {
			return fmt.Errorf("config: feeds[%d]: duplicate label %q", i, f.Label)
		}
		seen[f.Label] = struct{}{}
	}
	return nil
}

// FeedMap returns the configured feeds as label -> URL.
func (c *Config) FeedMap() map[string]string {
	m := make(map[string]string, len(c.Feeds))
	for _, f := range c.Feeds {
		m[f.Label] = f.URL
	}
	return m
}

// ApplyEnv overlays environment settings on c. PORT keeps the listen host
// and replaces its port; ICSBUSY_LISTEN replaces the whole address.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if port := getenv("PORT"); port != "" {
		host := "0.0.0.0"
		if h, _, err := net.SplitHostPort(c.Listen); err == nil && h != "" {
			host = h
		}
		c.Listen = host + ":" + port
	}
	if v := getenv("ICSBUSY_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := getenv("ICSBUSY_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Concurrency = n
		}
	}
	if v := getenv("ICSBUSY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("ICSBUSY_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	c.Normalize()
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If path is empty, the defaults are returned and nothing is written.
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".icsbusy-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
