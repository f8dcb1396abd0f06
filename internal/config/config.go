// Package config handles model viewer and tool configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-models/internal/engine/gpu"
)

// Config holds all settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Models   ModelsConfig   `yaml:"models"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
	FPSLimit   int  `yaml:"fps_limit"`
}

// ModelsConfig holds model loading settings.
type ModelsConfig struct {
	GRFPaths    []string `yaml:"grf_paths"`    // GRF archives, later ones win
	SearchPaths []string `yaml:"search_paths"` // Plain directories, taking priority over the archives
	GPUMode     string   `yaml:"gpu_mode"`     // "immediate" or "deferred"
	Workers     int      `yaml:"workers"`      // Background loader goroutines
	Preload     []string `yaml:"preload"`

	// CenterOffsets shifts the midpoint of individual models, keyed by model name.
	CenterOffsets map[string][3]float32 `yaml:"center_offsets"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FPSLimit:   0,
		},
		Models: ModelsConfig{
			GRFPaths: []string{"data.grf"},
			GPUMode:  gpu.ModeDeferred.String(),
			Workers:  2,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// Mode returns the configured GPU execution mode.
func (m ModelsConfig) Mode() (gpu.Mode, error) {
	return gpu.ParseMode(m.GPUMode)
}

// CenterOffset returns the configured midpoint shift for a model name.
func (m ModelsConfig) CenterOffset(name string) mgl32.Vec3 {
	key := strings.ToLower(name)
	for k, v := range m.CenterOffsets {
		if strings.ToLower(k) == key {
			return mgl32.Vec3(v)
		}
	}
	return mgl32.Vec3{}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Graphics.Width <= 0 || c.Graphics.Height <= 0 {
		return fmt.Errorf("graphics: invalid size %dx%d", c.Graphics.Width, c.Graphics.Height)
	}
	if _, err := c.Models.Mode(); err != nil {
		return fmt.Errorf("models: %w", err)
	}
	if c.Models.Workers < 1 {
		return fmt.Errorf("models: workers must be at least 1, got %d", c.Models.Workers)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics: enabled without an address")
	}
	return nil
}
