package logger

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds logging configuration. Env tags name the overrides.
type Config struct {
	Level          string `yaml:"level" env:"LOG_LEVEL"`
	ConsoleEnabled bool   `yaml:"console_enabled" env:"LOG_CONSOLE_ENABLED"`
	ConsoleFormat  string `yaml:"console_format" env:"LOG_CONSOLE_FORMAT"`
	FileEnabled    bool   `yaml:"file_enabled" env:"LOG_FILE_ENABLED"`
	FilePath       string `yaml:"file_path" env:"LOG_FILE_PATH"`
	FileFormat     string `yaml:"file_format" env:"LOG_FILE_FORMAT"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxBackups int    `yaml:"file_max_backups"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
	FileCompress   bool   `yaml:"file_compress"`
}

// loggingFile is the layout of logging.yaml
type loggingFile struct {
	Logging Config `yaml:"logging"`
}

// DefaultConfig returns console-only INFO logging.
func DefaultConfig() Config {
	return Config{
		Level:          "INFO",
		ConsoleEnabled: true,
		ConsoleFormat:  "text",
		FilePath:       "logs/questd.log",
		FileFormat:     "json",
		FileMaxSizeMB:  10,
		FileMaxBackups: 5,
		FileMaxAgeDays: 30,
	}
}

// LoadConfig loads logging configuration from a YAML file and applies
// environment overrides. A missing file yields the defaults; a malformed
// one is an error.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return config, fmt.Errorf("read logging config: %w", err)
		default:
			// Decoding over the defaults keeps any key the file leaves out.
			file := loggingFile{Logging: config}
			if err := yaml.Unmarshal(data, &file); err != nil {
				return DefaultConfig(), fmt.Errorf("parse logging config: %w", err)
			}
			config = file.Logging
		}
	}

	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("logging env overrides: %w", err)
	}
	return config, nil
}
