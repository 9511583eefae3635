// Package config loads ergowatch settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "ergowatch.yaml"

// Config represents the complete ergowatch configuration
type Config struct {
	DataRoot  string          `yaml:"data_root"` // root of data/, models/ and assets/ (default: ".")
	Camera    CameraConfig    `yaml:"camera"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Detection DetectionConfig `yaml:"detection"`
	Capture   CaptureConfig   `yaml:"capture"`
	Alarm     AlarmConfig     `yaml:"alarm"`
	Store     StoreConfig     `yaml:"store"`
}

// CameraConfig contains camera settings
type CameraConfig struct {
	Device      int `yaml:"device"`
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	FPS         int `yaml:"fps"`
	WarmupReads int `yaml:"warmup_reads"` // reads attempted after opening before giving up (default: 10)
}

// EstimatorConfig locates the pose estimator subprocess
type EstimatorConfig struct {
	Python string `yaml:"python"` // interpreter; empty searches ~/.ergowatch/venv then PATH
	Script string `yaml:"script"` // pose service script; empty searches known locations
}

// DetectionConfig contains live detection settings
type DetectionConfig struct {
	ModelPath       string  `yaml:"model_path"` // empty uses models/posture_model.json
	Window          int     `yaml:"window"`     // vote window size (default: 8)
	Alpha           float64 `yaml:"alpha"`      // history weight of the smoothed probability (default: 0.6)
	GoodLabel       string  `yaml:"good_label"` // class whose probability is smoothed (default: good)
	ModelComplexity int     `yaml:"model_complexity"`
	MinConfidence   float64 `yaml:"min_confidence"`
	Display         bool    `yaml:"display"` // show the camera window
	Tray            bool    `yaml:"tray"`    // show the menu bar indicator
}

// CaptureConfig contains dataset capture settings
type CaptureConfig struct {
	FlushRows       int  `yaml:"flush_rows"`        // buffered rows that force a flush (default: 50)
	FlushIntervalMs int  `yaml:"flush_interval_ms"` // maximum age of buffered rows (default: 2000)
	Seconds         int  `yaml:"seconds"`           // session time limit; 0 runs until stopped
	DrawEvery       int  `yaml:"draw_every"`        // draw landmarks every Nth frame (default: 3)
	InferWidth      int  `yaml:"infer_width"`
	InferHeight     int  `yaml:"infer_height"`
	ModelComplexity int  `yaml:"model_complexity"`
	Display         bool `yaml:"display"`
}

// AlarmConfig contains alert settings
type AlarmConfig struct {
	Sound         string   `yaml:"sound"`          // WAV file; empty uses assets/beep.wav
	PlayerCommand string   `yaml:"player_command"` // empty detects paplay, aplay, afplay
	PlayerArgs    []string `yaml:"player_args"`
	TimeoutMs     int      `yaml:"timeout_ms"`
	LogFormat     string   `yaml:"log_format"` // csv or xlsx (default: csv)
	Muted         bool     `yaml:"muted"`
}

// StoreConfig contains run history settings
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // empty uses data/ergowatch.db
}

// FlushInterval returns the capture flush interval as a duration.
func (c CaptureConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataRoot: ".",
		Camera: CameraConfig{
			Device:      0,
			Width:       640,
			Height:      480,
			FPS:         30,
			WarmupReads: 10,
		},
		Detection: DetectionConfig{
			Window:          8,
			Alpha:           0.6,
			GoodLabel:       "good",
			ModelComplexity: 1,
			MinConfidence:   0.5,
			Display:         true,
		},
		Capture: CaptureConfig{
			FlushRows:       50,
			FlushIntervalMs: 2000,
			DrawEvery:       3,
			InferWidth:      640,
			InferHeight:     360,
			ModelComplexity: 0,
			Display:         true,
		},
		Alarm: AlarmConfig{
			TimeoutMs: 5000,
			LogFormat: "csv",
		},
		Store: StoreConfig{
			Enabled: true,
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to the defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration values
func Validate(cfg *Config) error {
	if cfg.DataRoot == "" {
		return fmt.Errorf("data_root is required")
	}

	if cfg.Camera.Device < 0 {
		return fmt.Errorf("camera.device must be >= 0")
	}
	if cfg.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be > 0")
	}
	if cfg.Camera.WarmupReads < 1 {
		return fmt.Errorf("camera.warmup_reads must be >= 1")
	}

	if cfg.Detection.Window < 1 {
		return fmt.Errorf("detection.window must be >= 1")
	}
	if cfg.Detection.Alpha < 0 || cfg.Detection.Alpha > 1 {
		return fmt.Errorf("detection.alpha must be between 0 and 1")
	}
	if strings.TrimSpace(cfg.Detection.GoodLabel) == "" {
		return fmt.Errorf("detection.good_label is required")
	}
	if cfg.Detection.MinConfidence < 0 || cfg.Detection.MinConfidence > 1 {
		return fmt.Errorf("detection.min_confidence must be between 0 and 1")
	}
	if cfg.Detection.ModelComplexity < 0 || cfg.Detection.ModelComplexity > 2 {
		return fmt.Errorf("detection.model_complexity must be 0, 1 or 2")
	}

	if cfg.Capture.FlushRows < 1 {
		return fmt.Errorf("capture.flush_rows must be >= 1")
	}
	if cfg.Capture.FlushIntervalMs < 1 {
		return fmt.Errorf("capture.flush_interval_ms must be >= 1")
	}
	if cfg.Capture.Seconds < 0 {
		return fmt.Errorf("capture.seconds must be >= 0")
	}
	if cfg.Capture.DrawEvery < 1 {
		return fmt.Errorf("capture.draw_every must be >= 1")
	}
	if cfg.Capture.ModelComplexity < 0 || cfg.Capture.ModelComplexity > 2 {
		return fmt.Errorf("capture.model_complexity must be 0, 1 or 2")
	}

	switch cfg.Alarm.LogFormat {
	case "csv", "xlsx":
	default:
		return fmt.Errorf("alarm.log_format must be csv or xlsx, got %q", cfg.Alarm.LogFormat)
	}
	if cfg.Alarm.TimeoutMs < 1 {
		return fmt.Errorf("alarm.timeout_ms must be >= 1")
	}

	return nil
}
