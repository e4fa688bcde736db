package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// HTTP contains outbound request settings shared by every source adapter.
type HTTP struct {
	RequestTimeout int      `toml:"request_timeout"`
	UserAgents     []string `toml:"user_agents"`
}

// Cycle contains settings for the repeating run loop.
type Cycle struct {
	Interval int `toml:"interval"`
}

// Freshness contains the temporal policy thresholds, in minutes.
type Freshness struct {
	PollIntervalMinutes int `toml:"poll_interval_minutes"`
	HotMinAgeMinutes    int `toml:"hot_min_age_minutes"`
	HotMaxAgeMinutes    int `toml:"hot_max_age_minutes"`
	HotMinComments      int `toml:"hot_min_comments"`
	// BackfillLookbackHours bounds stale backfill to recent posts; 0 means
	// every uncommented post stays eligible.
	BackfillLookbackHours int `toml:"backfill_lookback_hours"`
}

// Budget bounds the comment backfill phase of each cycle.
type Budget struct {
	MaxCommentFetches int `toml:"max_comment_fetches"`
	MinDelayMillis    int `toml:"min_delay_ms"`
}

// LLM contains connection settings for the post categorizer.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Enrichment contains settings for the categorization pass.
type Enrichment struct {
	Enabled        bool `toml:"enabled"`
	CooldownMillis int  `toml:"cooldown_ms"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	MaxPerCycle    int    `toml:"max_per_cycle"`
}

// Store selects the persistence backend.
type Store struct {
	PostgresDSN string `toml:"postgres_dsn"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Source describes one forum adapter instance.
type Source struct {
	Name    string `toml:"name"`
	Kind    string `toml:"kind"`
	BaseURL string `toml:"base_url"`
	// Forum is the subreddit for reddit sources and the optional category
	// slug for discourse sources.
	Forum            string `toml:"forum"`
	Limit            int    `toml:"limit"`
	DetailLimit      int    `toml:"detail_limit"`
	DetailDelayMilli int    `toml:"detail_delay_ms"`
	// Category bypasses the classifier for single-topic sources.
	Category string `toml:"category"`
	Disabled bool   `toml:"disabled"`
}

// Config encapsulates all configuration values for threadwatch.
type Config struct {
	Paths         Paths         `toml:"paths"`
	HTTP          HTTP          `toml:"http"`
	Cycle         Cycle         `toml:"cycle"`
	Freshness     Freshness     `toml:"freshness"`
	Budget        Budget        `toml:"budget"`
	LLM           LLM           `toml:"llm"`
	Enrichment    Enrichment    `toml:"enrichment"`
	Notifications Notifications `toml:"notifications"`
	Store         Store         `toml:"store"`
	Logging       Logging       `toml:"logging"`
	Sources       []Source      `toml:"sources"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A .env file in
// the working directory is applied to the environment before env fallbacks
// are resolved; variables already set take precedence.
func Load(path string) (*Config, string, bool, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("threadwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "threadwatch.db")
}

// LockPath returns the cycle lock file location inside the data dir.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "cycle.lock")
}

// RequestTimeout returns the per-call HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.RequestTimeout) * time.Second
}

// CycleInterval returns the delay between cycles in the run loop.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Cycle.Interval) * time.Second
}

// EnabledSources returns the configured sources that are not disabled.
func (c *Config) EnabledSources() []Source {
	out := make([]Source, 0, len(c.Sources))
	for _, src := range c.Sources {
		if !src.Disabled {
			out = append(out, src)
		}
	}
	return out
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// ErrSampleExists is returned by CreateSample when the target is already
// present and overwrite is false.
var ErrSampleExists = errors.New("config file already exists")

// CreateSample writes the sample configuration to path. Without overwrite the
// file is created exclusively and an existing file is left untouched.
func CreateSample(path string, overwrite bool) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%s: %w", path, ErrSampleExists)
	}
	if err != nil {
		return fmt.Errorf("open sample config: %w", err)
	}
	if _, err := f.WriteString(sampleConfig); err != nil {
		_ = f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return f.Close()
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}
