// Package config provides configuration loading and management for usbeamform.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"usbeamform/internal/models"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Array describes the linear transducer
	Array struct {
		// Elements is the number of transducer elements
		Elements int `yaml:"elements"`

		// Pitch is the element spacing in meters
		Pitch float64 `yaml:"pitch"`
	} `yaml:"array"`

	// Medium holds the physical constants of the imaged medium
	Medium struct {
		// SpeedOfSound in m/s
		SpeedOfSound float64 `yaml:"speedOfSound"`
	} `yaml:"medium"`

	// Scan parameters
	Scan struct {
		// Angles lists the steering angles in degrees. When empty, the
		// inclusive range AngleMin..AngleMax is used instead.
		Angles []int `yaml:"angles,omitempty"`

		// AngleMin and AngleMax bound the steering range in degrees
		AngleMin int `yaml:"angleMin"`
		AngleMax int `yaml:"angleMax"`

		// Focals lists the focal depths in meters
		Focals []float64 `yaml:"focals"`

		// SamplingRate of the digitizer in Hz
		SamplingRate float64 `yaml:"samplingRate"`

		// TriggerOffset from master trigger to element triggers, in seconds
		TriggerOffset float64 `yaml:"triggerOffset"`

		// RoundTrip doubles the geometric delay term for two-way transit
		RoundTrip bool `yaml:"roundTrip"`
	} `yaml:"scan"`

	// Acquisition buffer layout
	Acquisition struct {
		// SamplesPerRecord is the number of samples per record
		SamplesPerRecord int `yaml:"samplesPerRecord"`

		// ChannelsPerElement is the number of digitizer channels per slot
		ChannelsPerElement int `yaml:"channelsPerElement"`

		// FrameCount is the number of frames in the buffer (2 = double buffering)
		FrameCount int `yaml:"frameCount"`
	} `yaml:"acquisition"`

	// Processing parameters
	Processing struct {
		// Strategy is sequential, parallel, opencl or auto
		Strategy string `yaml:"strategy"`

		// NumWorkers is the goroutine pool size for the parallel strategy
		NumWorkers int `yaml:"numWorkers"`

		// FocalIndex selects which focal depth forms the image
		FocalIndex int `yaml:"focalIndex"`
	} `yaml:"processing"`

	// Simulation parameters used when no capture is replayed
	Simulation struct {
		// SampleMax is the exclusive upper bound of synthetic samples
		SampleMax int `yaml:"sampleMax"`

		// Seed for the synthetic sample generator
		Seed uint64 `yaml:"seed"`
	} `yaml:"simulation"`

	// Output parameters
	Output struct {
		// ImagePath is where the last image is written (.tif or .jpg)
		ImagePath string `yaml:"imagePath"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// 64-element array at 38 µm pitch in water
	cfg.Array.Elements = 64
	cfg.Array.Pitch = 3.8e-5
	cfg.Medium.SpeedOfSound = 1.54e3

	cfg.Scan.AngleMin = -35
	cfg.Scan.AngleMax = 35
	cfg.Scan.Focals = []float64{8e-3}
	cfg.Scan.SamplingRate = 500e6 // 500 MS/s
	cfg.Scan.TriggerOffset = 500e-9
	cfg.Scan.RoundTrip = false

	cfg.Acquisition.SamplesPerRecord = 320 * 5
	cfg.Acquisition.ChannelsPerElement = 2
	cfg.Acquisition.FrameCount = 2

	cfg.Processing.Strategy = "auto"
	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.FocalIndex = 0

	cfg.Simulation.SampleMax = 1 << 12 // 12-bit digitizer
	cfg.Simulation.Seed = 1

	cfg.Output.ImagePath = "image.tif"
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

// AngleSet returns the configured steering angles in order
func (c *Config) AngleSet() []int {
	if len(c.Scan.Angles) > 0 {
		out := make([]int, len(c.Scan.Angles))
		copy(out, c.Scan.Angles)
		return out
	}
	if c.Scan.AngleMax < c.Scan.AngleMin {
		return nil
	}
	out := make([]int, 0, c.Scan.AngleMax-c.Scan.AngleMin+1)
	for a := c.Scan.AngleMin; a <= c.Scan.AngleMax; a++ {
		out = append(out, a)
	}
	return out
}

// Geometry returns the array geometry described by the configuration
func (c *Config) Geometry() models.ArrayGeometry {
	return models.ArrayGeometry{
		Elements: c.Array.Elements,
		Pitch:    c.Array.Pitch,
	}
}

// ScanConfiguration returns the scan described by the configuration
func (c *Config) ScanConfiguration() models.ScanConfiguration {
	focals := make([]float64, len(c.Scan.Focals))
	copy(focals, c.Scan.Focals)
	return models.ScanConfiguration{
		Angles:        c.AngleSet(),
		Focals:        focals,
		SamplingRate:  c.Scan.SamplingRate,
		TriggerOffset: c.Scan.TriggerOffset,
		SpeedOfSound:  c.Medium.SpeedOfSound,
		RoundTrip:     c.Scan.RoundTrip,
	}
}

// AcquisitionLayout returns the frame buffer layout described by the configuration
func (c *Config) AcquisitionLayout() models.AcquisitionLayout {
	return models.AcquisitionLayout{
		SamplesPerRecord:   c.Acquisition.SamplesPerRecord,
		ChannelsPerElement: c.Acquisition.ChannelsPerElement,
		FrameCount:         c.Acquisition.FrameCount,
	}
}

// Validate checks every section and returns the first problem found,
// wrapped in models.ErrConfiguration
func (c *Config) Validate() error {
	if err := c.Geometry().Validate(); err != nil {
		return err
	}
	scan := c.ScanConfiguration()
	if err := scan.Validate(); err != nil {
		return err
	}
	if err := c.AcquisitionLayout().Validate(); err != nil {
		return err
	}
	if c.Processing.FocalIndex < 0 || c.Processing.FocalIndex >= len(scan.Focals) {
		return fmt.Errorf("%w: focal index %d outside [0, %d)", models.ErrConfiguration, c.Processing.FocalIndex, len(scan.Focals))
	}
	if c.Simulation.SampleMax < 1 || c.Simulation.SampleMax > 1<<16 {
		return fmt.Errorf("%w: sample range %d outside [1, 65536]", models.ErrConfiguration, c.Simulation.SampleMax)
	}
	return nil
}
