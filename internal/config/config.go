// Package config loads the studio settings from an optional YAML file on top
// of built-in defaults.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

// Config holds every setting of the service and the CLI.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Training TrainingConfig `yaml:"training"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	// MaxUploadMB bounds the multipart body of /upload.
	MaxUploadMB int `yaml:"maxUploadMb"`
}

// TrainingConfig holds the defaults applied to every training run.
type TrainingConfig struct {
	TestSize     float64 `yaml:"testSize"`
	NEstimators  int     `yaml:"nEstimators"`
	Seed         *int64  `yaml:"seed"`
	TargetColumn string  `yaml:"targetColumn"`
}

// HistoryConfig enables the SQLite training run log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig selects level, format and destination of the logs.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"http://localhost:3000"},
			MaxUploadMB:    32,
		},
		Training: TrainingConfig{
			TestSize:    0.2,
			NEstimators: 100,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "studio_history.db",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load returns the defaults overridden by the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: cannot read %s", path)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return cfg, errors.Wrapf(err, "config: cannot parse %s", path)
	}

	cfg = merge(cfg, fileCfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges the file could get wrong.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewValidationError("server.port", "must be in 1..65535", c.Server.Port)
	}
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return errors.NewValidationError("training.testSize", "must be in (0, 1)", c.Training.TestSize)
	}
	if c.Training.NEstimators < 1 {
		return errors.NewValidationError("training.nEstimators", "must be at least 1", c.Training.NEstimators)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.NewValidationError("log.format", "must be json or console", c.Log.Format)
	}
	return nil
}

func merge(base, override Config) Config {
	if override.Server.Host != "" {
		base.Server.Host = override.Server.Host
	}
	if override.Server.Port != 0 {
		base.Server.Port = override.Server.Port
	}
	if len(override.Server.AllowedOrigins) > 0 {
		base.Server.AllowedOrigins = override.Server.AllowedOrigins
	}
	if override.Server.MaxUploadMB != 0 {
		base.Server.MaxUploadMB = override.Server.MaxUploadMB
	}

	if override.Training.TestSize != 0 {
		base.Training.TestSize = override.Training.TestSize
	}
	if override.Training.NEstimators != 0 {
		base.Training.NEstimators = override.Training.NEstimators
	}
	if override.Training.Seed != nil {
		base.Training.Seed = override.Training.Seed
	}
	if override.Training.TargetColumn != "" {
		base.Training.TargetColumn = override.Training.TargetColumn
	}

	if override.History.Enabled {
		base.History.Enabled = true
	}
	if override.History.Path != "" {
		base.History.Path = override.History.Path
	}

	if override.Log.Level != "" {
		base.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		base.Log.Format = override.Log.Format
	}
	if override.Log.File != "" {
		base.Log.File = override.Log.File
	}
	if override.Log.MaxSizeMB != 0 {
		base.Log.MaxSizeMB = override.Log.MaxSizeMB
	}
	if override.Log.MaxBackups != 0 {
		base.Log.MaxBackups = override.Log.MaxBackups
	}
	if override.Log.MaxAgeDays != 0 {
		base.Log.MaxAgeDays = override.Log.MaxAgeDays
	}

	return base
}
