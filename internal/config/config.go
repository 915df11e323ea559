// Package config loads the capture daemon's JSON configuration. Fields
// omitted from the file keep their defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mito-data/radar.capture/internal/capture"
	"github.com/mito-data/radar.capture/internal/dataset"
)

// Config is the root configuration for the capture daemon.
type Config struct {
	// Network
	BindAddress        string `json:"bind_address"`
	ReceiveBufferBytes int    `json:"receive_buffer_bytes"`
	ReadTimeout        string `json:"read_timeout"` // duration string like "100ms"

	// Session
	TargetFrameCount    int    `json:"target_frame_count"`
	StallTimeoutSeconds int    `json:"stall_timeout_seconds"`
	HandoffDepth        int    `json:"handoff_depth"`
	TimestampPolicy     string `json:"timestamp_policy"` // "first_frame" or "session_start"

	// Acquisition shape
	Radar capture.RadarParams `json:"radar"`

	// Persistence
	DatasetRoot string             `json:"dataset_root"`
	Experiment  dataset.Experiment `json:"experiment"`
	CatalogPath string             `json:"catalog_path"`
}

// Default returns the configuration used when no file is supplied. The
// network defaults match the capture card's factory raw-mode settings.
func Default() *Config {
	return &Config{
		BindAddress:         "192.168.33.30:4098",
		ReceiveBufferBytes:  4 * 1024 * 1024,
		ReadTimeout:         "100ms",
		TargetFrameCount:    100,
		StallTimeoutSeconds: 3,
		HandoffDepth:        1024,
		TimestampPolicy:     string(capture.TimestampFirstFrame),
		Radar: capture.RadarParams{
			NumSamples:    256,
			NumChirps:     16,
			NumRx:         4,
			NumTx:         1,
			PeriodicityMs: 100,
			SweepTime:     60e-6,
		},
		DatasetRoot: "data",
		Experiment:  dataset.Experiment{LineOfSight: true},
		CatalogPath: "capture-catalog.db",
	}
}

// Load reads a JSON config file over the defaults. The file must have a
// .json extension and stay under the max file size.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		return fmt.Errorf("bind_address is required")
	}
	if c.ReadTimeout != "" {
		if _, err := time.ParseDuration(c.ReadTimeout); err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", c.ReadTimeout, err)
		}
	}
	if c.TargetFrameCount <= 0 {
		return fmt.Errorf("target_frame_count must be positive, got %d", c.TargetFrameCount)
	}
	if c.StallTimeoutSeconds <= 0 {
		return fmt.Errorf("stall_timeout_seconds must be positive, got %d", c.StallTimeoutSeconds)
	}
	if c.HandoffDepth < 0 {
		return fmt.Errorf("handoff_depth must be non-negative, got %d", c.HandoffDepth)
	}
	switch capture.TimestampPolicy(c.TimestampPolicy) {
	case capture.TimestampFirstFrame, capture.TimestampSessionStart, "":
	default:
		return fmt.Errorf("unknown timestamp_policy %q", c.TimestampPolicy)
	}
	if err := c.Radar.Validate(); err != nil {
		return err
	}
	if c.DatasetRoot == "" {
		return fmt.Errorf("dataset_root is required")
	}
	if c.CatalogPath == "" {
		return fmt.Errorf("catalog_path is required")
	}
	return nil
}

// GetReadTimeout parses ReadTimeout, falling back to the default on an
// empty value.
func (c *Config) GetReadTimeout() time.Duration {
	if c.ReadTimeout == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetStallTimeout returns the stall timeout as a duration.
func (c *Config) GetStallTimeout() time.Duration {
	return time.Duration(c.StallTimeoutSeconds) * time.Second
}
