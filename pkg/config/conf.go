// Package config reads and writes the walletscore YAML config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/walletscore/pkg/score"
	"github.com/mchmarny/walletscore/pkg/tx"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	defaultOutputDir = "output"
)

// Config represents app config object.
type Config struct {
	Workers    int           `yaml:"workers"`
	OutputDir  string        `yaml:"outputDir"`
	Heuristic  score.Weights `yaml:"heuristic"`
	Validation Validation    `yaml:"validation"`
}

// Validation configures the optional row validation rule. Rule takes
// precedence over NonNegative when both are set.
type Validation struct {
	NonNegative bool   `yaml:"nonNegative"`
	Rule        string `yaml:"rule,omitempty"`
}

// Default returns the config used when no file exists.
func Default() *Config {
	return &Config{
		OutputDir: defaultOutputDir,
		Heuristic: score.DefaultWeights(),
	}
}

// NormalizerOptions returns the tx options implied by the validation
// section.
func (c *Config) NormalizerOptions() ([]tx.Option, error) {
	expr := strings.TrimSpace(c.Validation.Rule)
	if expr == "" && c.Validation.NonNegative {
		expr = tx.NonNegativeRule
	}
	if expr == "" {
		return nil, nil
	}

	r, err := tx.NewRule(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid validation rule: %w", err)
	}
	return []tx.Option{tx.WithRule(r)}, nil
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
		return fmt.Errorf("marshaling config: %w", err)
	}

	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

// Load reads the config file at path. Fields missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}

	if c.Workers < 0 {
		return nil, fmt.Errorf("config %s: workers must not be negative, got %d", path, c.Workers)
	}

	slog.Debug("config loaded", "path", path, "workers", c.Workers)
	return c, nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if err := os.MkdirAll(dirPath, dirMode); err != nil {
		return nil, fmt.Errorf("creating config dir %s: %w", dirPath, err)
	}

	path := filepath.Join(dirPath, configFileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(dirPath, Default()); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
	}

	return Load(path)
}

// GetOrCreateHomeDir returns the named directory under the user home,
// creating it when missing. created reports whether it was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("getting user home dir: %w", err)
	}

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("creating dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
