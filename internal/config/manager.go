package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name looked up in the working directory and
// the user config dir.
const FileName = "trailblaze.yaml"

func defaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(configDir, "trailblaze"), nil
}

// Manager handles the persistent per-user configuration file.
type Manager struct {
	configDir string
}

// NewManager creates a manager for the user config dir.
func NewManager() (*Manager, error) {
	dir, err := defaultDir()
	if err != nil {
		return nil, err
	}
	return &Manager{configDir: dir}, nil
}

// NewManagerAt creates a manager rooted at dir.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// GetConfigPath returns the absolute path to the config file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, FileName)
}

// Load reads the user config file on top of the defaults. A missing file
// yields the defaults.
func (m *Manager) Load() (*Config, error) {
	if !m.Exists() {
		return Default(), nil
	}
	return Load(New(m.GetConfigPath()))
}

// Save writes cfg to disk with restricted permissions (0600), since it may
// hold an API key.
func (m *Manager) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	if err := os.MkdirAll(m.configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(m.GetConfigPath(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return err == nil
}
