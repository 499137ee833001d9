package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies the defaults a missing file falls back to.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Name != "average" {
		t.Errorf("Expected default model \"average\", got %q", cfg.Model.Name)
	}
	if cfg.Model.IncludeB0InAverage {
		t.Errorf("Expected b=0 volumes excluded from the average by default")
	}
	if cfg.Split.WithB0 {
		t.Errorf("Expected withB0 false by default")
	}
	if cfg.Gradient.B0Threshold != 50 {
		t.Errorf("Expected default b=0 threshold 50, got %f", cfg.Gradient.B0Threshold)
	}
}

// TestLoadConfigMissingFile falls back to defaults without error.
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed for missing file: %v", err)
	}
	if cfg.Model.Name != "average" {
		t.Errorf("Expected defaults for missing file, got model %q", cfg.Model.Name)
	}
}

// TestLoadConfigOverrides parses overrides while keeping untouched defaults.
func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmotion.yaml")
	content := "model:\n  name: dti\ngradient:\n  b0Threshold: 25\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Model.Name != "dti" {
		t.Errorf("Expected model \"dti\", got %q", cfg.Model.Name)
	}
	if cfg.Gradient.B0Threshold != 25 {
		t.Errorf("Expected b=0 threshold 25, got %f", cfg.Gradient.B0Threshold)
	}
	if !cfg.Output.Verbose {
		t.Errorf("Expected untouched default verbose=true")
	}
}

// TestSaveConfigRoundTrip writes a config and reads it back.
func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dmotion.yaml")
	cfg := DefaultConfig()
	cfg.Model.Name = "dki"
	cfg.Output.PredictionsFile = "predicted.dwi"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Model.Name != "dki" {
		t.Errorf("Expected model \"dki\" after round trip, got %q", loaded.Model.Name)
	}
	if loaded.Output.PredictionsFile != "predicted.dwi" {
		t.Errorf("Expected predictions file to survive round trip, got %q", loaded.Output.PredictionsFile)
	}
}
