// Package config loads and validates the pipeline configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Output  OutputConfig  `yaml:"output"`
	Images  ImagesConfig  `yaml:"images"`
	Fonts   FontsConfig   `yaml:"fonts"`
	Minify  MinifyConfig  `yaml:"minify"`
	History HistoryConfig `yaml:"history"`
	Metrics MetricsConfig `yaml:"metrics"`
	Events  EventsConfig  `yaml:"events"`
	Watch   WatchConfig   `yaml:"watch"`
}

// SourceConfig locates the built site tree. It is read-only for the pipeline.
type SourceConfig struct {
	Directory string `yaml:"directory"`
}

// OutputConfig controls the mutable build snapshot.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Clean     bool   `yaml:"clean"` // Discard prior output before a run
}

// ImagesConfig controls the image pass.
type ImagesConfig struct {
	Enabled bool `yaml:"enabled"`
	Quality int  `yaml:"quality,omitempty"`
}

// FontsConfig controls the font pass.
type FontsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MinifyConfig controls the minify pass.
type MinifyConfig struct {
	Scripts bool `yaml:"scripts"`
	Styles  bool `yaml:"styles"`
}

// HistoryConfig controls the run-history ledger.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// MetricsConfig controls optional Prometheus exposition (watch mode).
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"` // e.g. ":9351"; empty disables
}

// EventsConfig controls optional run-summary publication (watch mode).
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	DebounceSeconds int    `yaml:"debounce_seconds,omitempty"`
	Schedule        string `yaml:"schedule,omitempty"` // optional interval, e.g. "30m"
}

// envFiles are tried in order; the first readable one wins.
var envFiles = []string{".env", ".env.local"}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env file if present; existing process environment wins.
	for _, envPath := range envFiles {
		if err := godotenv.Load(envPath); err == nil {
			slog.Debug("Loaded environment variables", slog.String("file", envPath))
			break
		}
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

func (c *Config) applyDefaults() {
	if c.Output.Directory == "" {
		c.Output.Directory = "./optimized"
	}
	if c.Images.Quality == 0 {
		c.Images.Quality = 82
	}
	if c.History.Enabled && c.History.Path == "" {
		c.History.Path = "assetpress-history.db"
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "assetpress.runs"
	}
	if c.Watch.DebounceSeconds == 0 {
		c.Watch.DebounceSeconds = 2
	}
}

// Validate checks setup-level invariants. Violations are fatal before any
// mutation occurs.
func (c *Config) Validate() error {
	if c.Source.Directory == "" {
		return fmt.Errorf("source.directory is required")
	}
	if c.Images.Quality < 1 || c.Images.Quality > 100 {
		return fmt.Errorf("images.quality must be within 1..100, got %d", c.Images.Quality)
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}
	return nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := `# assetpress configuration
source:
  directory: ./dist

output:
  directory: ./optimized
  clean: true

images:
  enabled: true
  quality: 82

fonts:
  enabled: true

minify:
  scripts: true
  styles: true

history:
  enabled: false
  # path: assetpress-history.db

# metrics:
#   listen: ":9351"

# events:
#   enabled: true
#   url: nats://localhost:4222
#   subject: assetpress.runs

watch:
  debounce_seconds: 2
  # schedule: 30m
`
	if err := os.WriteFile(configPath, []byte(example), 0o640); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
