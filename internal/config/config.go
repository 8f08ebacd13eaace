package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port           int
	EnginePath     string // empty means search the usual install locations
	ScanTimeout    time.Duration
	StreamTimeout  time.Duration
	MaxOutputBytes int
	LogLevel       string
	File           string // YAML overlay that was read, if any
	MoleConfigDir  string // where the engine keeps whitelist, purge_paths, clean-list.txt

	PurgeTargets    []string
	PurgeDepth      int
	SizeConcurrency int
	Refresh         []RefreshJob
}

// RefreshJob schedules a background dry-run of one verb.
type RefreshJob struct {
	Verb string `yaml:"verb"`
	Cron string `yaml:"cron"`
}

// fileConfig is the YAML overlay. Zero values leave the default alone.
type fileConfig struct {
	Port            int          `yaml:"port"`
	EnginePath      string       `yaml:"engine_path"`
	LogLevel        string       `yaml:"log_level"`
	PurgeTargets    []string     `yaml:"purge_targets"`
	PurgeDepth      int          `yaml:"purge_depth"`
	SizeConcurrency int          `yaml:"size_concurrency"`
	Refresh         []RefreshJob `yaml:"refresh"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:            8080,
		ScanTimeout:     2 * time.Minute,
		StreamTimeout:   5 * time.Minute,
		MaxOutputBytes:  10 << 20,
		LogLevel:        "info",
		MoleConfigDir:   ExpandPath("~/.config/mole"),
		PurgeDepth:      4,
		SizeConcurrency: 10,
	}
}

// DefaultFile is where the YAML overlay is looked for.
func DefaultFile() string {
	return ExpandPath("~/.config/moleui/config.yaml")
}

// Load reads the optional YAML overlay and then environment variables.
// Environment variables always win. A missing overlay file is not an error.
func Load() (*Config, error) {
	cfg := Defaults()

	path := ExpandPath(getEnv("MOLEUI_CONFIG", DefaultFile()))
	if err := cfg.overlay(path); err != nil {
		return nil, err
	}

	cfg.Port = getEnvInt("MOLEUI_PORT", cfg.Port)
	cfg.EnginePath = ExpandPath(getEnv("MOLEUI_ENGINE_PATH", cfg.EnginePath))
	cfg.ScanTimeout = getEnvDuration("MOLEUI_SCAN_TIMEOUT", cfg.ScanTimeout)
	cfg.StreamTimeout = getEnvDuration("MOLEUI_STREAM_TIMEOUT", cfg.StreamTimeout)
	cfg.MaxOutputBytes = getEnvInt("MOLEUI_MAX_OUTPUT", cfg.MaxOutputBytes)
	cfg.LogLevel = getEnv("MOLEUI_LOG_LEVEL", cfg.LogLevel)
	cfg.MoleConfigDir = ExpandPath(getEnv("MOLEUI_MOLE_CONFIG_DIR", cfg.MoleConfigDir))

	return cfg, nil
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.File = path

	if fc.Port != 0 {
		c.Port = fc.Port
	}
	if fc.EnginePath != "" {
		c.EnginePath = ExpandPath(fc.EnginePath)
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if len(fc.PurgeTargets) > 0 {
		c.PurgeTargets = fc.PurgeTargets
	}
	if fc.PurgeDepth > 0 {
		c.PurgeDepth = fc.PurgeDepth
	}
	if fc.SizeConcurrency > 0 {
		c.SizeConcurrency = fc.SizeConcurrency
	}
	for _, job := range fc.Refresh {
		if job.Verb == "" || job.Cron == "" {
			return fmt.Errorf("refresh entry needs both verb and cron: %+v", job)
		}
		c.Refresh = append(c.Refresh, job)
	}
	return nil
}

// WhitelistPath is the engine's protected-paths file.
func (c *Config) WhitelistPath() string {
	return filepath.Join(c.MoleConfigDir, "whitelist")
}

// SearchPathsPath lists extra roots for the artifact scanner.
func (c *Config) SearchPathsPath() string {
	return filepath.Join(c.MoleConfigDir, "purge_paths")
}

// CleanListPath is written by the engine during a clean dry-run and maps
// categories to the paths it would remove.
func (c *Config) CleanListPath() string {
	return filepath.Join(c.MoleConfigDir, "clean-list.txt")
}

// ExpandPath expands a leading ~ to the home directory and cleans the path.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(path)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("90s") or plain seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
