// Package config loads the server configuration from an optional YAML
// file, with command-line flags taking precedence over file values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the server settings.
type Config struct {
	// Port the HTTP server listens on.
	Port int `yaml:"port"`

	// DBPath is the SQLite database file, or ":memory:".
	DBPath string `yaml:"db_path"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:     8080,
		DBPath:   "commerce.db",
		LogLevel: "info",
	}
}

// Load reads a YAML config file on top of the defaults. A missing file is
// not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
