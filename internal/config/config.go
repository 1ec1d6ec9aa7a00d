package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	Detection DetectionConfig `json:"detection"`
	Measure   MeasureConfig   `json:"measure"`
	Backend   BackendConfig   `json:"backend"`
	Output    OutputConfig    `json:"output"`
}

// DetectionConfig holds confidence gates for the landmark model output
type DetectionConfig struct {
	MinLandmarkConfidence float64 `json:"min_landmark_confidence"`
	MinVertebraConfidence float64 `json:"min_vertebra_confidence"`
}

// MeasureConfig holds the measurement thresholds
type MeasureConfig struct {
	MinCobbAngle    float64 `json:"min_cobb_angle"`
	EndSearchMargin float64 `json:"end_search_margin"`
}

// BackendConfig holds the landmark backend connection settings
type BackendConfig struct {
	Backend string `json:"backend"` // ollama or llamacpp
	URL     string `json:"url"`
	Model   string `json:"model"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	OutputDir      string `json:"output_dir"`
	OverlayFormat  string `json:"overlay_format"`
	OverlayQuality int    `json:"overlay_quality"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Detection: DetectionConfig{
			MinLandmarkConfidence: 0.3,
			MinVertebraConfidence: 0.3,
		},
		Measure: MeasureConfig{
			MinCobbAngle:    10.0,
			EndSearchMargin: 10.0,
		},
		Backend: BackendConfig{
			Backend: "llamacpp",
			URL:     "",
			Model:   "openbmb/minicpm-v4.5",
		},
		Output: OutputConfig{
			OutputDir:      "./output",
			OverlayFormat:  "png",
			OverlayQuality: 92,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Detection.MinLandmarkConfidence < 0 || c.Detection.MinLandmarkConfidence > 1 {
		return fmt.Errorf("detection.min_landmark_confidence must be between 0 and 1")
	}

	if c.Detection.MinVertebraConfidence < 0 || c.Detection.MinVertebraConfidence > 1 {
		return fmt.Errorf("detection.min_vertebra_confidence must be between 0 and 1")
	}

	if c.Measure.MinCobbAngle < 0 {
		return fmt.Errorf("measure.min_cobb_angle must not be negative")
	}

	if c.Measure.EndSearchMargin < 0 {
		return fmt.Errorf("measure.end_search_margin must not be negative")
	}

	if c.Backend.Backend != "ollama" && c.Backend.Backend != "llamacpp" {
		return fmt.Errorf("backend.backend must be ollama or llamacpp")
	}

	if c.Output.OverlayQuality < 1 || c.Output.OverlayQuality > 100 {
		return fmt.Errorf("output.overlay_quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "spine-analyzer", "config.json")
}
