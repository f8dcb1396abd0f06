package config

import (
	"flag"
	"strings"
)

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
	flagGRF        = flag.String("grf", "", "Comma-separated GRF archives, replacing the configured ones")
	flagData       = flag.String("data", "", "Comma-separated data directories, replacing the configured ones")
	flagGPUMode    = flag.String("gpu-mode", "", "GPU resource mode: immediate or deferred")
	flagWorkers    = flag.Int("workers", 0, "Background model loader goroutines")
	flagMetrics    = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagWindowed {
		cfg.Graphics.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Graphics.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
	if *flagGRF != "" {
		cfg.Models.GRFPaths = splitList(*flagGRF)
	}
	if *flagData != "" {
		cfg.Models.SearchPaths = splitList(*flagData)
	}
	if *flagGPUMode != "" {
		cfg.Models.GPUMode = *flagGPUMode
	}
	if *flagWorkers > 0 {
		cfg.Models.Workers = *flagWorkers
	}
	if *flagMetrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *flagMetrics
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
