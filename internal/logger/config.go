package logger

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds logging configuration
type Config struct {
	Level          string `yaml:"level"`
	ConsoleEnabled bool   `yaml:"console_enabled"`
	ConsoleFormat  string `yaml:"console_format"`
	FileEnabled    bool   `yaml:"file_enabled"`
	FilePath       string `yaml:"file_path"`
	FileFormat     string `yaml:"file_format"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxBackups int    `yaml:"file_max_backups"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
	FileCompress   bool   `yaml:"file_compress"`
}

// fileConfig is the logging section of a config file.
type fileConfig struct {
	Logging Config `yaml:"logging"`
}

// DefaultConfig returns console-only text logging at INFO.
func DefaultConfig() Config {
	return Config{
		Level:          "INFO",
		ConsoleEnabled: true,
		ConsoleFormat:  "text",
		FileEnabled:    false,
		FilePath:       "logs/levelgen.log",
		FileFormat:     "text",
		FileMaxSizeMB:  10,
		FileMaxBackups: 5,
		FileMaxAgeDays: 30,
	}
}

// LoadConfig reads the logging section of a YAML file over the defaults and
// then applies LEVELFORGE_LOG_* environment overrides. A missing file is not
// an error; a malformed one is.
func LoadConfig(configPath string) (Config, error) {
	wrapper := fileConfig{Logging: DefaultConfig()}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &wrapper); err != nil {
				return applyEnv(DefaultConfig()), fmt.Errorf("failed to parse logging config: %w", err)
			}
		case !os.IsNotExist(err):
			return applyEnv(DefaultConfig()), fmt.Errorf("failed to read logging config: %w", err)
		}
	}

	return applyEnv(wrapper.Logging), nil
}

func applyEnv(config Config) Config {
	if level := os.Getenv("LEVELFORGE_LOG_LEVEL"); level != "" {
		config.Level = level
	}
	if format := os.Getenv("LEVELFORGE_LOG_FORMAT"); format != "" {
		config.ConsoleFormat = format
	}
	if fileEnabled := os.Getenv("LEVELFORGE_LOG_FILE_ENABLED"); fileEnabled != "" {
		if enabled, err := strconv.ParseBool(fileEnabled); err == nil {
			config.FileEnabled = enabled
		}
	}
	if filePath := os.Getenv("LEVELFORGE_LOG_FILE_PATH"); filePath != "" {
		config.FilePath = filePath
	}
	return config
}
