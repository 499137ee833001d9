// Package config provides configuration loading and management for dmotion.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nipreps/dmotion/pkg/dwi"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Model selection parameters
	Model struct {
		// Name selects the signal model ("trivial", "average", "dti", "dki")
		Name string `yaml:"name"`

		// IncludeB0InAverage makes the averaging model fold b=0 volumes
		// into its voxel-wise mean
		IncludeB0InAverage bool `yaml:"includeB0InAverage"`
	} `yaml:"model"`

	// Split parameters
	Split struct {
		// WithB0 holds b=0 volumes out too, instead of only
		// diffusion-weighted directions
		WithB0 bool `yaml:"withB0"`
	} `yaml:"split"`

	// Gradient table parameters
	Gradient struct {
		// B0Threshold is the b-value below which a volume counts as b=0,
		// in s/mm^2
		B0Threshold float64 `yaml:"b0Threshold"`
	} `yaml:"gradient"`

	// Output parameters
	Output struct {
		// PredictionsFile is where the predicted reference volumes are
		// saved as a dataset container; empty disables saving
		PredictionsFile string `yaml:"predictionsFile"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default model parameters
	cfg.Model.Name = "average"
	cfg.Model.IncludeB0InAverage = false

	// Set default split parameters
	cfg.Split.WithB0 = false

	// Set default gradient table parameters
	cfg.Gradient.B0Threshold = dwi.DefaultB0Threshold

	// Set default output parameters
	cfg.Output.PredictionsFile = ""
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
