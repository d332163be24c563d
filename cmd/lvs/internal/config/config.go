// Package config manages lvs CLI configuration stored at ~/.config/lvs/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "config.yaml"

	// DefaultConfigDir is the default configuration directory relative to home.
	DefaultConfigDir = ".config/lvs"
)

// Config represents the lvs CLI configuration.
type Config struct {
	// CatalogPaths lists directories searched for component catalogs.
	CatalogPaths []string `yaml:"catalog_paths"`

	// DefaultCatalog is the manifest used when a command takes no --catalog flag.
	DefaultCatalog string `yaml:"default_catalog,omitempty"`

	// JournalPath is the sqlite journal used by replay and serve.
	JournalPath string `yaml:"journal_path,omitempty"`

	// Version is the config schema version.
	Version string `yaml:"version"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		CatalogPaths: []string{},
		Version:      "1.0",
	}
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultConfigDir, ConfigFileName), nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultConfigDir), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// LoadConfig loads the configuration from disk. Returns the default
// configuration when no config file exists yet.
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Backfill fields missing from older config files.
	if config.CatalogPaths == nil {
		config.CatalogPaths = []string{}
	}
	if config.Version == "" {
		config.Version = "1.0"
	}

	return &config, nil
}

// SaveConfig saves the configuration to disk.
func SaveConfig(config *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// AddCatalogPath adds a catalog search path to the configuration.
func (c *Config) AddCatalogPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return fmt.Errorf("path does not exist: %s", absPath)
	}

	for _, existing := range c.CatalogPaths {
		if existing == absPath {
			return fmt.Errorf("path already configured: %s", absPath)
		}
	}

	c.CatalogPaths = append(c.CatalogPaths, absPath)
	return nil
}

// RemoveCatalogPath removes a catalog search path from the configuration.
func (c *Config) RemoveCatalogPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	for i, existing := range c.CatalogPaths {
		if existing == absPath {
			c.CatalogPaths = append(c.CatalogPaths[:i], c.CatalogPaths[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("path not configured: %s", absPath)
}

// Validate checks that every configured path still exists.
func (c *Config) Validate() error {
	for _, path := range c.CatalogPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("catalog path does not exist: %s", path)
		}
	}
	if c.DefaultCatalog != "" {
		if _, err := os.Stat(c.DefaultCatalog); os.IsNotExist(err) {
			return fmt.Errorf("default catalog does not exist: %s", c.DefaultCatalog)
		}
	}
	return nil
}
