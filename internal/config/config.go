package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sigls/facload/internal/model"
)

const (
	DefaultConflictRetries      = 3
	DefaultFacilityFallbackName = "Nome não informado"
)

// Config holds all runtime configuration for a facload run.
type Config struct {
	DSN        string
	ConfigPath string
	FilePath   string
	LogFormat  string // "text" or "json"
	LogLevel   string
	Force      bool

	ConflictRetries      int                 `yaml:"conflict_retries"`
	FacilityFallbackName string              `yaml:"facility_fallback_name"`
	RawColumns           map[string][]string `yaml:"raw_columns"` // spreadsheet header aliases per raw column
}

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	ConflictRetries      *int                `yaml:"conflict_retries"`
	FacilityFallbackName string              `yaml:"facility_fallback_name"`
	RawColumns           map[string][]string `yaml:"raw_columns"`
}

// Defaults returns a Config with every tunable at its default.
func Defaults() Config {
	return Config{
		LogFormat:            "text",
		LogLevel:             "info",
		ConflictRetries:      DefaultConflictRetries,
		FacilityFallbackName: DefaultFacilityFallbackName,
	}
}

// LoadFromFile reads a YAML config file and merges its values into Config.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if yc.ConflictRetries != nil {
		c.ConflictRetries = *yc.ConflictRetries
	}
	if yc.FacilityFallbackName != "" {
		c.FacilityFallbackName = yc.FacilityFallbackName
	}
	c.RawColumns = yc.RawColumns
	return c.validateTunables()
}

// validateTunables checks retry bounds and that every raw_columns key is a
// known raw column.
func (c *Config) validateTunables() error {
	if c.ConflictRetries < 0 {
		return fmt.Errorf("conflict_retries must be >= 0, got %d", c.ConflictRetries)
	}
	for name, aliases := range c.RawColumns {
		if !knownRawColumn(name) {
			return fmt.Errorf("unknown raw column %q in config", name)
		}
		if len(aliases) == 0 {
			return fmt.Errorf("raw column %q has no header aliases", name)
		}
	}
	return nil
}

func knownRawColumn(name string) bool {
	for _, col := range model.RawColumns {
		if col == name {
			return true
		}
	}
	return false
}

// Validate checks required fields and returns an error if the config is invalid.
func (c *Config) Validate() error {
	if c.FilePath == "" {
		return fmt.Errorf("--file is required")
	}
	if _, err := os.Stat(c.FilePath); err != nil {
		return fmt.Errorf("file not accessible: %w", err)
	}
	return nil
}

// ValidateWithDSN checks both file and DSN fields.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return c.ValidateDSN()
}

// ValidateDSN checks only the DSN, for commands that take no input file.
func (c *Config) ValidateDSN() error {
	if c.DSN == "" {
		return fmt.Errorf("--dsn or FACLOAD_DB_URL is required")
	}
	return nil
}
