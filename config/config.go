// Package config loads service configuration from YAML with sane
// defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Port             string   `yaml:"port"`
	WorkerCount      int      `yaml:"worker_count"`
	KeyFile          string   `yaml:"key_file"`
	StorageDir       string   `yaml:"storage_dir"`
	TokenExpiryHours int      `yaml:"token_expiry_hours"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	LogLevel         string   `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Port:             "8080",
		WorkerCount:      0, // 0 lets the worker pool size itself from CPU count
		KeyFile:          "security_key.bin",
		StorageDir:       "binding_storage",
		TokenExpiryHours: 24,
		AllowedOrigins:   []string{"http://localhost:3000"},
		LogLevel:         "info",
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist. The PORT environment variable overrides the
// configured port.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config file %s: %v", path, err)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	return cfg, nil
}
