// Package config loads varstore settings.
//
// Sources, lowest precedence first:
//
//  1. Built-in defaults
//  2. YAML file named by VARS_CONFIG
//  3. Environment (VARS_*), after loading .env from the working directory
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "VARS"

// DefaultDataDirName is the directory created under the working directory
// (or the home directory) when no data dir is configured.
const DefaultDataDirName = ".vars-data"

const (
	StoreFile   = "file"
	StoreMemory = "memory"
)

// Log configures the zerolog logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
	Output string `yaml:"output"` // stdout, stderr or file
	File   string `yaml:"file"`
}

// Config holds every process-wide setting. It is read once at startup.
// Environment names are VARS_DATA_DIR, VARS_STORE, VARS_LISTEN,
// VARS_HEALTH_INTERVAL and VARS_LOG_{LEVEL,FORMAT,OUTPUT,FILE}.
type Config struct {
	DataDir        string        `yaml:"data_dir" split_words:"true"`
	Store          string        `yaml:"store"` // file or memory
	Listen         string        `yaml:"listen"`
	HealthInterval time.Duration `yaml:"health_interval" split_words:"true"` // data dir probe period
	Log            Log           `yaml:"log"`
}

// DefaultHealthInterval is used when HealthInterval is unset.
const DefaultHealthInterval = 10 * time.Second

// Load reads .env (if present), the optional YAML file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	var cfg Config
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error parsing YAML %s: %w", path, err)
	}
	return nil
}

// finish applies defaults and validates.
func (c *Config) finish() error {
	if c.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return err
		}
		c.DataDir = dir
	}
	abs, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir %q: %w", c.DataDir, err)
	}
	c.DataDir = abs

	c.Store = strings.ToLower(c.Store)
	switch c.Store {
	case "":
		c.Store = StoreFile
	case StoreFile, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %q or %q)", c.Store, StoreFile, StoreMemory)
	}

	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.HealthInterval < 0 {
		return fmt.Errorf("health interval must not be negative, got %s", c.HealthInterval)
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stderr"
	}
	if c.Log.Output == "file" && c.Log.File == "" {
		c.Log.File = filepath.Join("logs", "varstore.log")
	}
	return nil
}

func defaultDataDir() (string, error) {
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, DefaultDataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no data dir configured and no working or home directory: %w", err)
	}
	return filepath.Join(home, DefaultDataDirName), nil
}
