// Package config loads and validates the service configuration from a TOML
// file, applying defaults for anything not set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full service configuration
type Config struct {
	Paths      PathsConfig      `toml:"paths"`
	FFmpeg     FFmpegConfig     `toml:"ffmpeg"`
	Classifier ClassifierConfig `toml:"classifier"`
	Hand       HandConfig       `toml:"hand"`
	Detect     DetectConfig     `toml:"detect"`
	Server     ServerConfig     `toml:"server"`
}

// PathsConfig holds the staging directories
type PathsConfig struct {
	UploadDir string `toml:"upload_dir"`
	OutputDir string `toml:"output_dir"`
	DataDir   string `toml:"data_dir"` // Job store database lives here
}

// FFmpegConfig locates the transcoder binary
type FFmpegConfig struct {
	Binary     string `toml:"binary"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// ClassifierConfig points at the model serving endpoint
type ClassifierConfig struct {
	Endpoint string `toml:"endpoint"`
	Model    string `toml:"model"`
}

// HandConfig configures the external hand-detection collaborator
type HandConfig struct {
	Command        string `toml:"command"`         // Empty disables hand detection
	DefaultWeights string `toml:"default_weights"` // Used when a job uploads none
}

// DetectConfig exposes the arbitration thresholds. These are empirically
// tuned defaults, kept configurable rather than hard-coded.
type DetectConfig struct {
	Threshold         float64 `toml:"threshold"`
	String12Threshold float64 `toml:"string12_threshold"`
	ConfidenceFloor   float64 `toml:"confidence_floor"`
}

// ServerConfig holds the HTTP listen address
type ServerConfig struct {
	Listen string `toml:"listen"`
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			UploadDir: "uploads",
			OutputDir: "outputs",
			DataDir:   "data",
		},
		FFmpeg: FFmpegConfig{
			Binary:     "ffmpeg",
			TimeoutSec: 600,
		},
		Classifier: ClassifierConfig{
			Endpoint: "http://localhost:8501",
			Model:    "harp_strings",
		},
		Detect: DetectConfig{
			Threshold:         0.25,
			String12Threshold: 0.03,
			ConfidenceFloor:   0.20,
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return cfg, cfg.Validate()
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail deep inside a job
func (c *Config) Validate() error {
	if c.FFmpeg.Binary == "" {
		return fmt.Errorf("ffmpeg.binary must not be empty")
	}
	if c.FFmpeg.TimeoutSec <= 0 {
		return fmt.Errorf("ffmpeg.timeout_sec must be positive")
	}
	if c.Classifier.Endpoint == "" {
		return fmt.Errorf("classifier.endpoint must not be empty")
	}
	if c.Classifier.Model == "" {
		return fmt.Errorf("classifier.model must not be empty")
	}
	if c.Detect.Threshold <= 0 || c.Detect.Threshold > 1 {
		return fmt.Errorf("detect.threshold must be in (0, 1]")
	}
	if c.Detect.String12Threshold <= 0 || c.Detect.String12Threshold > 1 {
		return fmt.Errorf("detect.string12_threshold must be in (0, 1]")
	}
	if c.Detect.ConfidenceFloor < 0 || c.Detect.ConfidenceFloor > 1 {
		return fmt.Errorf("detect.confidence_floor must be in [0, 1]")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	return nil
}

// EnsureDirectories creates the staging directories
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.OutputDir, c.Paths.DataDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// FFmpegTimeout returns the transcoder timeout as a duration
func (c *Config) FFmpegTimeout() time.Duration {
	return time.Duration(c.FFmpeg.TimeoutSec) * time.Second
}

// StorePath returns the job store database path
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}
