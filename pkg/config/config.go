// Package config provides configuration loading and management for lungseg.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"lungseg/internal/models"
	"lungseg/pkg/morphology"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Segmentation parameters
	Segmentation struct {
		// LowThreshold is the exclusive lower intensity bound in HU
		LowThreshold float64 `yaml:"lowThreshold"`

		// HighThreshold is the exclusive upper intensity bound in HU
		HighThreshold float64 `yaml:"highThreshold"`
	} `yaml:"segmentation"`

	// Refinement parameters
	Refinement struct {
		// FillConnectivity is the background adjacency used by hole filling (6, 18 or 26)
		FillConnectivity int `yaml:"fillConnectivity"`

		// ClosingConnectivity selects the 3x3x3 structuring element of the closing (6, 18 or 26)
		ClosingConnectivity int `yaml:"closingConnectivity"`
	} `yaml:"refinement"`

	// Loader parameters
	Loader struct {
		// Format forces the input format: auto, dicom, images or nifti
		Format string `yaml:"format"`

		// RescaleSlope and RescaleIntercept map image-stack gray levels to intensities
		RescaleSlope     float64 `yaml:"rescaleSlope"`
		RescaleIntercept float64 `yaml:"rescaleIntercept"`

		// PixelSpacing is the in-plane voxel size in mm for image stacks
		PixelSpacing float64 `yaml:"pixelSpacing"`

		// SliceGap represents the physical distance between consecutive image slices in mm
		SliceGap float64 `yaml:"sliceGap"`
	} `yaml:"loader"`

	// Output parameters
	Output struct {
		// File is the exported mask path
		File string `yaml:"file"`

		// SaveIntermediaryResults determines whether to save intermediary processing results
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Visualization parameters
	Visualization struct {
		// WindowCenter and WindowWidth map intensities to display gray levels
		WindowCenter float64 `yaml:"windowCenter"`
		WindowWidth  float64 `yaml:"windowWidth"`
	} `yaml:"visualization"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	thresholds := models.DefaultThresholds()
	cfg.Segmentation.LowThreshold = thresholds.Low
	cfg.Segmentation.HighThreshold = thresholds.High

	cfg.Refinement.FillConnectivity = int(morphology.DefaultConnectivity)
	cfg.Refinement.ClosingConnectivity = int(morphology.DefaultConnectivity)

	cfg.Loader.Format = "auto"
	cfg.Loader.RescaleSlope = 1.0
	cfg.Loader.RescaleIntercept = 0.0
	cfg.Loader.PixelSpacing = 1.0
	cfg.Loader.SliceGap = 1.0

	cfg.Output.File = "segmented_lung.nii.gz"
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = false

	// lung window
	cfg.Visualization.WindowCenter = -600
	cfg.Visualization.WindowWidth = 1500

	return cfg
}

// Thresholds returns the configured threshold range
func (c *Config) Thresholds() models.ThresholdRange {
	return models.ThresholdRange{Low: c.Segmentation.LowThreshold, High: c.Segmentation.HighThreshold}
}

// Refiner builds a refiner from the refinement section
func (c *Config) Refiner() (*morphology.Refiner, error) {
	fill, err := morphology.ParseConnectivity(c.Refinement.FillConnectivity)
	if err != nil {
		return nil, fmt.Errorf("refinement.fillConnectivity: %w", err)
	}
	closing, err := morphology.ParseConnectivity(c.Refinement.ClosingConnectivity)
	if err != nil {
		return nil, fmt.Errorf("refinement.closingConnectivity: %w", err)
	}
	return &morphology.Refiner{FillConnectivity: fill, ClosingConnectivity: closing}, nil
}

// Validate checks values that would otherwise fail deep inside the pipeline.
// Degenerate thresholds are allowed and produce an empty mask.
func (c *Config) Validate() error {
	if _, err := c.Refiner(); err != nil {
		return err
	}
	switch c.Loader.Format {
	case "auto", "dicom", "images", "nifti":
	default:
		return fmt.Errorf("loader.format: unknown format %q", c.Loader.Format)
	}
	if c.Loader.PixelSpacing <= 0 || c.Loader.SliceGap <= 0 {
		return fmt.Errorf("loader: pixelSpacing and sliceGap must be positive")
	}
	if c.Visualization.WindowWidth <= 0 {
		return fmt.Errorf("visualization.windowWidth must be positive")
	}
	if c.Output.File == "" {
		return fmt.Errorf("output.file must not be empty")
	}
	return nil
}

// LoadConfig reads configPath over the defaults and validates the result.
// A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// keys absent from the file keep their default values
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating parent directories as needed
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile writes the default configuration to configPath
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
