// Package config loads and validates the pdf2muse configuration file.
//
// Configuration is optional: every field has a working default, so the CLI
// runs without a config file present. Values in the YAML body may reference
// environment variables ($VAR), which are expanded before parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/thedivergentai/pdf2muse/internal/errors"
)

// Config represents the application configuration
type Config struct {
	Tools       ToolsConfig       `yaml:"tools"`
	Render      RenderConfig      `yaml:"render"`
	Transcribe  TranscribeConfig  `yaml:"transcribe"`
	Checkpoints CheckpointsConfig `yaml:"checkpoints"`
	History     HistoryConfig     `yaml:"history"`
	Watch       WatchConfig       `yaml:"watch"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ToolsConfig names the external binaries the pipeline drives.
type ToolsConfig struct {
	Pdftoppm string `yaml:"pdftoppm,omitempty"`
	Oemer    string `yaml:"oemer,omitempty"`
}

// RenderConfig controls PDF page rasterization.
type RenderConfig struct {
	DPI int `yaml:"dpi,omitempty"`
}

// TranscribeConfig holds per-page transcription defaults. CLI flags override
// the option fields per invocation.
type TranscribeConfig struct {
	// Workers bounds the parallel transcription pool. 0 means one worker
	// per CPU; 1 forces sequential processing.
	Workers             int  `yaml:"workers,omitempty"`
	SkipDeskew          bool `yaml:"skip_deskew,omitempty"`
	UseAlternateBackend bool `yaml:"use_tf,omitempty"`
	PersistPredictions  bool `yaml:"save_cache,omitempty"`
}

// CheckpointsConfig locates the OMR model checkpoint bundles.
// Dir is resolved once per run and passed explicitly to the transcriber;
// there is no process-global checkpoint state.
type CheckpointsConfig struct {
	Dir     string `yaml:"dir,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// HistoryConfig configures the run-history store. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// WatchConfig configures drop-folder mode.
type WatchConfig struct {
	Dir           string   `yaml:"dir,omitempty"`
	OutputDir     string   `yaml:"output_dir,omitempty"`
	Debounce      Duration `yaml:"debounce,omitempty"`
	SweepInterval Duration `yaml:"sweep_interval,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint served in watch mode.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
}

// LoggingConfig controls slog handler setup.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist, just log it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadOrDefault behaves like Load but returns the default configuration when
// the file does not exist, so the CLI works without a config file.
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(configPath)
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Tools.Pdftoppm == "" {
		c.Tools.Pdftoppm = "pdftoppm"
	}
	if c.Tools.Oemer == "" {
		c.Tools.Oemer = "oemer"
	}
	if c.Render.DPI == 0 {
		c.Render.DPI = 300
	}
	if c.Checkpoints.BaseURL == "" {
		c.Checkpoints.BaseURL = DefaultCheckpointBaseURL
	}
	if c.Checkpoints.Dir == "" {
		c.Checkpoints.Dir = filepath.Join(cacheRoot(), "checkpoints")
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(cacheRoot(), "history.db")
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = Duration(defaultWatchDebounce)
	}
	if c.Watch.SweepInterval == 0 {
		c.Watch.SweepInterval = Duration(defaultSweepInterval)
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9464"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = string(LogLevelInfo)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = string(LogFormatText)
	}
}

// Validate checks configuration values that would otherwise fail deep inside
// a pipeline run.
func (c *Config) Validate() error {
	if c.Render.DPI < 50 || c.Render.DPI > 1200 {
		return errors.ConfigInvalid("render.dpi", fmt.Sprintf("must be between 50 and 1200, got %d", c.Render.DPI))
	}
	if c.Transcribe.Workers < 0 {
		return errors.ConfigInvalid("transcribe.workers", "must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return errors.ConfigInvalid("watch.debounce", "must not be negative")
	}
	if c.Watch.SweepInterval < 0 {
		return errors.ConfigInvalid("watch.sweep_interval", "must not be negative")
	}
	return nil
}

// EffectiveWorkers resolves the worker count for the transcription pool.
func (c *Config) EffectiveWorkers() int {
	if c.Transcribe.Workers > 0 {
		return c.Transcribe.Workers
	}
	return runtime.NumCPU()
}

// cacheRoot returns the per-user cache directory for pdf2muse state.
func cacheRoot() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "pdf2muse")
}
