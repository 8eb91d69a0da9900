package config

import (
	"log/slog"
	"os"
	"strings"
)

// Load builds the configuration with layered precedence:
// 1. Defaults
// 2. YAML file at path (skipped when path is empty)
// 3. REFERIDOS_* environment variables
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config := DefaultConfig()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded config file", slog.String("path", path))
		config = fileConfig
	}

	config.applyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set("REFERIDOS_PORT", &c.Server.Port)
	set("REFERIDOS_DB_PATH", &c.Server.DBPath)
	set("REFERIDOS_SECRET", &c.Server.Secret)
	set("REFERIDOS_LOG_LEVEL", &c.Server.LogLevel)
	set("REFERIDOS_DIRECTUS_URL", &c.Directus.URL)
	set("REFERIDOS_COLLECTION", &c.Directus.Collection)
}
