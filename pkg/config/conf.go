// Package config reads and writes the dropscore YAML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mchmarny/dropscore/pkg/rules"
	"github.com/mchmarny/dropscore/pkg/score"
	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"
	dirMode  = 0700
	fileMode = 0600

	DefaultPort            = 8080
	DefaultMonitorInterval = 14 * time.Minute
	DefaultMonitorTimeout  = 10 * time.Second
)

// Config represents app config object.
type Config struct {
	Artifacts    string           `yaml:"artifacts"`
	ORTLibrary   string           `yaml:"ortLibrary,omitempty"`
	Workers      int              `yaml:"workers"`
	TopFeatures  int              `yaml:"topFeatures"`
	ModelTimeout time.Duration    `yaml:"modelTimeout"`
	Tiers        score.Thresholds `yaml:"tiers"`
	Rules        rules.Config     `yaml:"rules"`
	Server       Server           `yaml:"server"`
	Monitor      Monitor          `yaml:"monitor"`
}

// Server configures the HTTP scoring service.
type Server struct {
	Port      int    `yaml:"port"`
	LogFormat string `yaml:"logFormat"`
}

// Monitor configures the health poller.
type Monitor struct {
	URLs     []string      `yaml:"urls,omitempty"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns the config used when no file exists. Artifacts default to
// the artifacts directory inside home.
func Default(home string) *Config {
	return &Config{
		Artifacts:    filepath.Join(home, "artifacts"),
		Workers:      0,
		TopFeatures:  score.DefaultTopFeatures,
		ModelTimeout: score.DefaultModelTimeout,
		Tiers:        score.DefaultThresholds(),
		Rules:        rules.DefaultConfig(),
		Server: Server{
			Port:      DefaultPort,
			LogFormat: "text",
		},
		Monitor: Monitor{
			Interval: DefaultMonitorInterval,
			Timeout:  DefaultMonitorTimeout,
		},
	}
}

// Scoring returns the engine config.
func (c *Config) Scoring() score.Config {
	return score.Config{
		Rules:        c.Rules,
		Thresholds:   c.Tiers,
		TopFeatures:  c.TopFeatures,
		ModelTimeout: c.ModelTimeout,
	}
}

// Validate checks the config values.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Monitor.Interval < 0 || c.Monitor.Timeout < 0 {
		return errors.New("monitor interval and timeout must not be negative")
	}
	return c.Scoring().Validate()
}

// Save writes c to the config file in dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, FileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default(dirPath)); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	return Load(path, dirPath)
}

// Load reads the config file at path. Fields missing from the file keep
// their defaults.
func Load(path, home string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := Default(home)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return c, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
