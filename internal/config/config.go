// Package config provides configuration loading and lookup for referidos.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Directus DirectusConfig `yaml:"directus"`
	App      AppConfig      `yaml:"app"`
	UI       UIConfig       `yaml:"ui"`
	Dev      DevConfig      `yaml:"dev"`

	formats  map[string]compiledFormat
	patterns map[string]*regexp.Regexp
}

// ServerConfig configures the local HTTP server and its storage.
type ServerConfig struct {
	Port     string `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	// Secret seals upstream tokens at rest and keys CSRF protection.
	// Empty means a random secret per process.
	Secret         string   `yaml:"secret"`
	TrustedOrigins []string `yaml:"trusted_origins"`
	SecureCookies  bool     `yaml:"secure_cookies"`
	// TrustProxy keys login rate limiting on proxy headers instead of the
	// peer address.
	TrustProxy bool `yaml:"trust_proxy"`
}

// DirectusConfig configures the remote collection API.
type DirectusConfig struct {
	URL        string        `yaml:"url"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// AppConfig holds the business rules and field tables.
type AppConfig struct {
	Title                string                `yaml:"title"`
	MaxMembersPerFounder int                   `yaml:"max_members_per_founder"`
	CompleteValues       CompleteValues        `yaml:"complete_values"`
	Formats              map[string]FormatRule `yaml:"formats"`
	Validation           ValidationConfig      `yaml:"validation"`
	// Notice is markdown shown on the login screen and dashboard.
	Notice string `yaml:"notice"`
}

// CompleteValues lists the raw literals accepted for the completion flag.
type CompleteValues struct {
	Complete   []string `yaml:"complete"`
	Incomplete []string `yaml:"incomplete"`
}

// FormatRule rewrites a field value for display.
type FormatRule struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// ValidationConfig holds per-field minimum lengths and patterns.
type ValidationConfig struct {
	MinLength map[string]int    `yaml:"min_length"`
	Patterns  map[string]string `yaml:"patterns"`
}

// UIConfig holds presentation timings.
type UIConfig struct {
	ErrorMessageDuration time.Duration `yaml:"error_message_duration"`
	// AutoRefresh reloads the member list periodically; 0 disables it.
	AutoRefresh time.Duration `yaml:"auto_refresh"`
}

// DevConfig holds development switches.
type DevConfig struct {
	Debug bool `yaml:"debug"`
}

type compiledFormat struct {
	re      *regexp.Regexp
	replace string
}

// Field kinds used by the format and validation tables.
const (
	FieldName     = "name"
	FieldAddress  = "address"
	FieldPhone    = "phone"
	FieldIDNumber = "id_number"
	FieldEmail    = "email"
)

// DefaultConfig returns a Config with the stock values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     "8080",
			DBPath:   "referidos.db",
			LogLevel: "info",
		},
		Directus: DirectusConfig{
			URL:        "https://directus.luispinta.com",
			Collection: "matriz",
			Timeout:    10 * time.Second,
		},
		App: AppConfig{
			Title:                "Sistema de Referidos",
			MaxMembersPerFounder: 5,
			CompleteValues: CompleteValues{
				Complete:   []string{"Sí", "Si", "si", "YES", "yes", "1", "true"},
				Incomplete: []string{"No", "no", "NO", "0", "false"},
			},
			// Anchored so an already formatted value never matches again.
			Formats: map[string]FormatRule{
				FieldIDNumber: {Pattern: `^(\d{4})(\d{7})$`, Replace: "$1-$2"},
				FieldPhone:    {Pattern: `^(\d{4})(\d{3})(\d{4})$`, Replace: "$1-$2-$3"},
			},
			Validation: ValidationConfig{
				MinLength: map[string]int{
					FieldName:     3,
					FieldAddress:  5,
					FieldPhone:    10,
					FieldIDNumber: 10,
				},
				Patterns: map[string]string{
					FieldPhone:    `^\d{10,11}$`,
					FieldIDNumber: `^\d{10,11}$`,
					FieldEmail:    `^[^\s@]+@[^\s@]+\.[^\s@]+$`,
				},
			},
		},
		UI: UIConfig{
			ErrorMessageDuration: 5 * time.Second,
		},
	}
}

// Validate checks that the configuration is usable and compiles the pattern tables.
func (c *Config) Validate() error {
	if c.Directus.URL == "" {
		return fmt.Errorf("directus.url is required")
	}
	if c.Directus.Collection == "" {
		return fmt.Errorf("directus.collection is required")
	}
	if c.Directus.Timeout <= 0 {
		return fmt.Errorf("directus.timeout must be positive")
	}
	if c.App.MaxMembersPerFounder <= 0 {
		return fmt.Errorf("app.max_members_per_founder must be positive")
	}
	if len(c.App.CompleteValues.Complete) == 0 {
		return fmt.Errorf("app.complete_values.complete must not be empty")
	}
	if c.UI.AutoRefresh < 0 {
		return fmt.Errorf("ui.auto_refresh must not be negative")
	}
	return c.compile()
}

func (c *Config) compile() error {
	formats := make(map[string]compiledFormat, len(c.App.Formats))
	for kind, rule := range c.App.Formats {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("app.formats.%s.pattern: %w", kind, err)
		}
		formats[kind] = compiledFormat{re: re, replace: rule.Replace}
	}

	patterns := make(map[string]*regexp.Regexp, len(c.App.Validation.Patterns))
	for kind, p := range c.App.Validation.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("app.validation.patterns.%s: %w", kind, err)
		}
		patterns[kind] = re
	}

	c.formats = formats
	c.patterns = patterns
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
