package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"usbeamform/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default configuration should be valid: %v", err)
	}

	angles := cfg.AngleSet()
	if len(angles) != 71 {
		t.Errorf("Expected 71 angles, got %d", len(angles))
	}
	if angles[0] != -35 || angles[len(angles)-1] != 35 {
		t.Errorf("Expected angles -35..35, got %d..%d", angles[0], angles[len(angles)-1])
	}

	scan := cfg.ScanConfiguration()
	if scan.RecordCount() != 71 {
		t.Errorf("Expected 71 records, got %d", scan.RecordCount())
	}
	if scan.RoundTrip {
		t.Error("Round-trip doubling should be off by default")
	}

	layout := cfg.AcquisitionLayout()
	if layout.SamplesPerSlot(scan.RecordCount()) != 1600*71*2 {
		t.Errorf("Unexpected slot length %d", layout.SamplesPerSlot(scan.RecordCount()))
	}
}

func TestAngleList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Angles = []int{-1, 0, 1}

	angles := cfg.AngleSet()
	if len(angles) != 3 || angles[0] != -1 || angles[2] != 1 {
		t.Errorf("Expected explicit angle list, got %v", angles)
	}

	// The returned slice must not alias the configuration
	angles[0] = 99
	if cfg.Scan.Angles[0] != -1 {
		t.Error("AngleSet should return a copy")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "usbeamform.yaml")

	cfg := DefaultConfig()
	cfg.Array.Elements = 4
	cfg.Scan.Angles = []int{-1, 0, 1}
	cfg.Scan.Focals = []float64{8e-3, 12e-3}
	cfg.Processing.Strategy = "sequential"
	cfg.Processing.FocalIndex = 1

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Array.Elements != 4 {
		t.Errorf("Expected 4 elements, got %d", loaded.Array.Elements)
	}
	if len(loaded.Scan.Focals) != 2 || loaded.Scan.Focals[1] != 12e-3 {
		t.Errorf("Unexpected focals %v", loaded.Scan.Focals)
	}
	if loaded.Processing.Strategy != "sequential" {
		t.Errorf("Expected sequential strategy, got %q", loaded.Processing.Strategy)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Loaded configuration should be valid: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Missing file should yield defaults: %v", err)
	}
	if cfg.Array.Elements != 64 {
		t.Errorf("Expected default element count, got %d", cfg.Array.Elements)
	}
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("array:\n  elements: 16\nscan:\n  angles: [-5, 5]\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Array.Elements != 16 {
		t.Errorf("Expected 16 elements, got %d", cfg.Array.Elements)
	}
	if cfg.Array.Pitch != 3.8e-5 {
		t.Errorf("Unset fields should keep defaults, got pitch %g", cfg.Array.Pitch)
	}
	if got := cfg.AngleSet(); len(got) != 2 {
		t.Errorf("Expected 2 angles, got %v", got)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("array: [unterminated"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no elements", func(c *Config) { c.Array.Elements = 0 }},
		{"zero pitch", func(c *Config) { c.Array.Pitch = 0 }},
		{"empty angle range", func(c *Config) { c.Scan.AngleMin, c.Scan.AngleMax = 5, -5 }},
		{"no focals", func(c *Config) { c.Scan.Focals = nil }},
		{"negative focal", func(c *Config) { c.Scan.Focals = []float64{-1e-3} }},
		{"zero sampling rate", func(c *Config) { c.Scan.SamplingRate = 0 }},
		{"zero speed of sound", func(c *Config) { c.Medium.SpeedOfSound = 0 }},
		{"no samples", func(c *Config) { c.Acquisition.SamplesPerRecord = 0 }},
		{"no frames", func(c *Config) { c.Acquisition.FrameCount = 0 }},
		{"focal index out of range", func(c *Config) { c.Processing.FocalIndex = 1 }},
		{"sample range too wide", func(c *Config) { c.Simulation.SampleMax = 1 << 17 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("Expected configuration error, got %v", err)
			}
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}
	if cfg.Scan.SamplingRate != 500e6 {
		t.Errorf("Expected 500 MS/s, got %g", cfg.Scan.SamplingRate)
	}
}
