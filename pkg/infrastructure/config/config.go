// Package config loads judged's configuration: a typed struct with
// sensible defaults, an optional JSON file, and environment variable
// overrides applied last — the same three-stage load the teacher uses
// for its own Config/LoadConfig/applyEnvironmentOverrides trio.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds judged's full runtime configuration.
type Config struct {
	Token   string `json:"token"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Threads int    `json:"threads"`

	Logging LoggingConfig `json:"logging"`
	Cache   CacheConfig   `json:"cache"`
}

// LoggingConfig controls the structured logger (A3).
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
	File   string `json:"file"`
}

// CacheConfig controls the artifact cache (C2) and the pipeline
// scratch root it shares a disk with.
type CacheConfig struct {
	Root        string `json:"root"`
	ScratchRoot string `json:"scratch_root"`
	TTLSeconds  int    `json:"ttl_seconds"`
}

// DefaultConfig returns the configuration spec.md's defaults table
// describes: port 3235, host 0.0.0.0, threads 1, info logging.
func DefaultConfig() *Config {
	return &Config{
		Token:   "",
		Host:    "0.0.0.0",
		Port:    3235,
		Threads: 1,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
			File:   "",
		},
		Cache: CacheConfig{
			Root:        "/tmp/judge-cache",
			ScratchRoot: "/tmp",
			TTLSeconds:  300,
		},
	}
}

// LoadConfig loads configuration from an optional JSON file, applies
// JUDGE_*/LOG_LEVEL environment overrides, then validates the result.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("config: load file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the env vars from spec.md §6.2,
// plus ambient extras (cache root/scratch root/TTL) this expansion adds.
func (c *Config) applyEnvironmentOverrides() {
	if val := os.Getenv("JUDGE_TOKEN"); val != "" {
		c.Token = val
	}
	if val := os.Getenv("JUDGE_HOST"); val != "" {
		c.Host = val
	}
	if val := os.Getenv("JUDGE_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Port = port
		}
	}
	if val := os.Getenv("JUDGE_THREADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Threads = n
		}
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("JUDGE_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("JUDGE_LOG_OUTPUT"); val != "" {
		c.Logging.Output = val
	}
	if val := os.Getenv("JUDGE_LOG_FILE"); val != "" {
		c.Logging.File = val
	}
	if val := os.Getenv("JUDGE_CACHE_ROOT"); val != "" {
		c.Cache.Root = val
	}
	if val := os.Getenv("JUDGE_SCRATCH_ROOT"); val != "" {
		c.Cache.ScratchRoot = val
	}
	if val := os.Getenv("JUDGE_CACHE_TTL_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Cache.TTLSeconds = n
		}
	}
}

// Validate enforces spec.md's constraints: a required token and
// threads >= 1, plus sane ranges for the ambient fields this expansion adds.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("JUDGE_TOKEN is required")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be >= 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	validOutputs := map[string]bool{"console": true, "file": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	if c.Cache.Root == "" {
		return fmt.Errorf("cache root cannot be empty")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	return nil
}
