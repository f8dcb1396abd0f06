package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-models/internal/engine/gpu"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Graphics.Width != 1280 {
		t.Errorf("expected width 1280, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 720 {
		t.Errorf("expected height 720, got %d", cfg.Graphics.Height)
	}
	if cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be false by default")
	}
	if !cfg.Graphics.VSync {
		t.Error("expected vsync to be true by default")
	}

	if mode, err := cfg.Models.Mode(); err != nil || mode != gpu.ModeDeferred {
		t.Errorf("expected deferred gpu mode, got %v (%v)", mode, err)
	}
	if cfg.Models.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Models.Workers)
	}
	if len(cfg.Models.GRFPaths) != 1 || cfg.Models.GRFPaths[0] != "data.grf" {
		t.Errorf("expected [data.grf], got %v", cfg.Models.GRFPaths)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics to be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1920
  height: 1080
  fullscreen: true
  vsync: false
  fps_limit: 144

models:
  grf_paths: ["rdata.grf", "data.grf"]
  search_paths: ["./data"]
  gpu_mode: immediate
  workers: 4
  preload:
    - data/model/prontera/fountain.rsm
  center_offsets:
    data/model/prontera/fountain.rsm: [0, 1.5, 0]

logging:
  level: "debug"
  log_file: "models.log"

metrics:
  enabled: true
  addr: ":9100"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Graphics.Width != 1920 || cfg.Graphics.Height != 1080 {
		t.Errorf("expected 1920x1080, got %dx%d", cfg.Graphics.Width, cfg.Graphics.Height)
	}
	if !cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be true")
	}
	if cfg.Graphics.FPSLimit != 144 {
		t.Errorf("expected fps limit 144, got %d", cfg.Graphics.FPSLimit)
	}

	if len(cfg.Models.GRFPaths) != 2 || cfg.Models.GRFPaths[0] != "rdata.grf" {
		t.Errorf("unexpected grf paths %v", cfg.Models.GRFPaths)
	}
	if len(cfg.Models.SearchPaths) != 1 || cfg.Models.SearchPaths[0] != "./data" {
		t.Errorf("unexpected search paths %v", cfg.Models.SearchPaths)
	}
	if mode, _ := cfg.Models.Mode(); mode != gpu.ModeImmediate {
		t.Errorf("expected immediate mode, got %v", mode)
	}
	if cfg.Models.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Models.Workers)
	}
	if len(cfg.Models.Preload) != 1 {
		t.Errorf("expected one preload entry, got %v", cfg.Models.Preload)
	}
	if got := cfg.Models.CenterOffset("DATA/MODEL/PRONTERA/FOUNTAIN.RSM"); got != (mgl32.Vec3{0, 1.5, 0}) {
		t.Errorf("expected center offset (0, 1.5, 0), got %v", got)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "models.log" {
		t.Errorf("expected log file 'models.log', got %s", cfg.Logging.LogFile)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9100" {
		t.Errorf("unexpected metrics config %+v", cfg.Metrics)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
graphics:
  width: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero width", func(c *Config) { c.Graphics.Width = 0 }},
		{"unknown gpu mode", func(c *Config) { c.Models.GPUMode = "lazy" }},
		{"no workers", func(c *Config) { c.Models.Workers = 0 }},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCenterOffsetMissing(t *testing.T) {
	cfg := Default()
	if got := cfg.Models.CenterOffset("nothing.rsm"); got != (mgl32.Vec3{}) {
		t.Errorf("expected zero offset, got %v", got)
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("graphics:\n  width: 800\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "fullscreen flag",
			setup: func() { *flagFullscreen = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be true with fullscreen flag")
				}
			},
			teardown: func() { *flagFullscreen = false },
		},
		{
			name: "width and height flags",
			setup: func() {
				*flagWidth = 2560
				*flagHeight = 1440
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Width != 2560 || cfg.Graphics.Height != 1440 {
					t.Errorf("expected 2560x1440, got %dx%d", cfg.Graphics.Width, cfg.Graphics.Height)
				}
			},
			teardown: func() {
				*flagWidth = 0
				*flagHeight = 0
			},
		},
		{
			name: "source flags",
			setup: func() {
				*flagGRF = "a.grf, b.grf,"
				*flagData = "./data"
			},
			verify: func(t *testing.T, cfg *Config) {
				if len(cfg.Models.GRFPaths) != 2 || cfg.Models.GRFPaths[1] != "b.grf" {
					t.Errorf("unexpected grf paths %q", cfg.Models.GRFPaths)
				}
				if len(cfg.Models.SearchPaths) != 1 || cfg.Models.SearchPaths[0] != "./data" {
					t.Errorf("unexpected search paths %q", cfg.Models.SearchPaths)
				}
			},
			teardown: func() {
				*flagGRF = ""
				*flagData = ""
			},
		},
		{
			name: "gpu and worker flags",
			setup: func() {
				*flagGPUMode = "immediate"
				*flagWorkers = 8
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Models.GPUMode != "immediate" || cfg.Models.Workers != 8 {
					t.Errorf("unexpected models config %+v", cfg.Models)
				}
			},
			teardown: func() {
				*flagGPUMode = ""
				*flagWorkers = 0
			},
		},
		{
			name:  "metrics flag",
			setup: func() { *flagMetrics = ":9000" },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9000" {
					t.Errorf("unexpected metrics config %+v", cfg.Metrics)
				}
			},
			teardown: func() { *flagMetrics = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1600
  height: 900
models:
  workers: 3
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagWidth = 1920
	defer func() {
		*flagConfig = ""
		*flagWidth = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920 from flag, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 900 {
		t.Errorf("expected height 900 from file, got %d", cfg.Graphics.Height)
	}
	if cfg.Models.Workers != 3 {
		t.Errorf("expected 3 workers from file, got %d", cfg.Models.Workers)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("models:\n  gpu_mode: sometimes\n"), 0644); err != nil {
		t.Fatal(err)
	}

	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid gpu mode")
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	want := Default()
	want.Models.Workers = 6
	if err := want.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	got := Default()
	if err := loadFromFile(got, path); err != nil {
		t.Fatalf("loading saved config: %v", err)
	}
	if got.Models.Workers != 6 {
		t.Errorf("expected 6 workers after round trip, got %d", got.Models.Workers)
	}
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\"): %v", err)
	}
	if cfg.Models.Workers != Default().Models.Workers {
		t.Errorf("expected default workers, got %d", cfg.Models.Workers)
	}

	configPath := filepath.Join(t.TempDir(), "tool.yaml")
	if err := os.WriteFile(configPath, []byte("models:\n  search_paths: [\"./assets\"]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Models.SearchPaths) != 1 || cfg.Models.SearchPaths[0] != "./assets" {
		t.Errorf("unexpected search paths %v", cfg.Models.SearchPaths)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromFile_Strict(t *testing.T) {
	dir := t.TempDir()

	typo := filepath.Join(dir, "typo.yaml")
	if err := os.WriteFile(typo, []byte("models:\n  worker: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := loadFromFile(Default(), typo); err == nil {
		t.Error("expected unknown key to be rejected")
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	if err := loadFromFile(cfg, empty); err != nil {
		t.Errorf("empty file: %v", err)
	}
	if cfg.Models.Workers != Default().Models.Workers {
		t.Errorf("empty file changed workers to %d", cfg.Models.Workers)
	}
}

func TestSaveTo_Replaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Default().SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), fileHeader) {
		t.Errorf("missing header in %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only config.yaml, found %d entries", len(entries))
	}
}
