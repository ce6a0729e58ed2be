package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungseg/pkg/morphology"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	r := cfg.Thresholds()
	assert.Equal(t, -1000.0, r.Low)
	assert.Equal(t, -300.0, r.High)
	assert.Equal(t, "segmented_lung.nii.gz", cfg.Output.File)

	refiner, err := cfg.Refiner()
	require.NoError(t, err)
	assert.Equal(t, morphology.Connectivity26, refiner.FillConnectivity)
	assert.Equal(t, morphology.Connectivity26, refiner.ClosingConnectivity)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
segmentation:
  lowThreshold: -950
refinement:
  fillConnectivity: 6
loader:
  format: images
  sliceGap: 2.5
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, -950.0, cfg.Segmentation.LowThreshold)
	assert.Equal(t, -300.0, cfg.Segmentation.HighThreshold, "unset keys keep their defaults")
	assert.Equal(t, "images", cfg.Loader.Format)
	assert.Equal(t, 2.5, cfg.Loader.SliceGap)

	refiner, err := cfg.Refiner()
	require.NoError(t, err)
	assert.Equal(t, morphology.Connectivity6, refiner.FillConnectivity)
	assert.Equal(t, morphology.Connectivity26, refiner.ClosingConnectivity)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segmentation: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
refinement:
  closingConnectivity: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closingConnectivity")

	require.NoError(t, os.WriteFile(path, []byte("loader:\n  format: png\n"), 0644))
	_, err = LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "png")
}

func TestSaveConfigRejectsInvalidValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Loader.SliceGap = -1
	path := filepath.Join(t.TempDir(), "config.yaml")

	assert.Error(t, SaveConfig(cfg, path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveAndReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"connectivity": func(c *Config) { c.Refinement.ClosingConnectivity = 4 },
		"format":       func(c *Config) { c.Loader.Format = "png" },
		"slice gap":    func(c *Config) { c.Loader.SliceGap = 0 },
		"window":       func(c *Config) { c.Visualization.WindowWidth = -1 },
		"output":       func(c *Config) { c.Output.File = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	degenerate := DefaultConfig()
	degenerate.Segmentation.LowThreshold = 0
	degenerate.Segmentation.HighThreshold = -10
	assert.NoError(t, degenerate.Validate(), "degenerate thresholds are not a configuration error")
}
