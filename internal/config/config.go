// Package config loads the application defaults from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"geo-assembler/internal/crystfel"
	"geo-assembler/internal/detector"
	"geo-assembler/internal/render"
	"geo-assembler/internal/version"
)

// DefaultCanvasMargin is the border added around the detector when the
// canvas has to grow.
const DefaultCanvasMargin = 300

// Config holds the defaults used by the GUI and the command line tools.
type Config struct {
	// Detector is AGIPD or LPD
	Detector string `yaml:"detector"`

	// Experiment parameters written into CrystFEL files
	Experiment struct {
		// Clen is the detector distance in metres
		Clen float64 `yaml:"clen"`
		// PhotonEnergy in eV
		PhotonEnergy float64 `yaml:"photonEnergy"`
	} `yaml:"experiment"`

	// Display parameters
	Display struct {
		Levels   render.Levels `yaml:"levels"`
		Colormap string        `yaml:"colormap"`
		// CanvasMargin is added on every side when the canvas grows
		CanvasMargin int `yaml:"canvasMargin"`
		// MoveIncrement is the step in pixels of one quadrant move
		MoveIncrement int  `yaml:"moveIncrement"`
		FrontView     bool `yaml:"frontView"`
	} `yaml:"display"`

	// Notebook generation
	Notebook struct {
		Dir  string `yaml:"dir"`
		File string `yaml:"file"`
	} `yaml:"notebook"`

	// Calibrant used for ring overlays
	Calibrant string `yaml:"calibrant"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{Detector: detector.AGIPD.Name, Calibrant: "LaB6"}
	meta := crystfel.DefaultMeta()
	cfg.Experiment.Clen = meta.Clen
	cfg.Experiment.PhotonEnergy = meta.PhotonEnergy

	cfg.Display.Levels = render.Levels{Min: 0, Max: 1500}
	cfg.Display.Colormap = "viridis"
	cfg.Display.CanvasMargin = DefaultCanvasMargin
	cfg.Display.MoveIncrement = 1

	cfg.Notebook.Dir = "."
	cfg.Notebook.File = "geometry.ipynb"
	return cfg
}

// DefaultPath returns the location of the user's config file.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, version.AppName, "config.yaml")
}

// Validate checks the values that would otherwise fail much later.
func (c *Config) Validate() error {
	if _, err := detector.Lookup(c.Detector); err != nil {
		return err
	}
	if c.Experiment.Clen <= 0 {
		return fmt.Errorf("clen must be positive, got %g", c.Experiment.Clen)
	}
	if c.Experiment.PhotonEnergy <= 0 {
		return fmt.Errorf("photon energy must be positive, got %g", c.Experiment.PhotonEnergy)
	}
	if c.Display.Levels.Max < c.Display.Levels.Min {
		return fmt.Errorf("maximum level %g below minimum %g", c.Display.Levels.Max, c.Display.Levels.Min)
	}
	if c.Display.CanvasMargin < 0 {
		return fmt.Errorf("canvas margin must not be negative, got %d", c.Display.CanvasMargin)
	}
	if c.Display.MoveIncrement <= 0 {
		return fmt.Errorf("move increment must be positive, got %d", c.Display.MoveIncrement)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
