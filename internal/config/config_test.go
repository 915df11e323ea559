package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "capture.json", `{
		"bind_address": "127.0.0.1:4098",
		"target_frame_count": 25
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BindAddress != "127.0.0.1:4098" {
		t.Errorf("bind_address = %q", cfg.BindAddress)
	}
	if cfg.TargetFrameCount != 25 {
		t.Errorf("target_frame_count = %d, want 25", cfg.TargetFrameCount)
	}
	// Untouched fields keep their defaults.
	if cfg.StallTimeoutSeconds != 3 {
		t.Errorf("stall_timeout_seconds = %d, want default 3", cfg.StallTimeoutSeconds)
	}
	if cfg.Radar.NumSamples != 256 {
		t.Errorf("radar.num_samples = %d, want default 256", cfg.Radar.NumSamples)
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := writeConfig(t, "capture.yaml", `bind_address: nope`)
	if _, err := Load(path); err == nil {
		t.Error("non-.json config should be rejected")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("missing config file should be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero target frames", func(c *Config) { c.TargetFrameCount = 0 }},
		{"negative target frames", func(c *Config) { c.TargetFrameCount = -5 }},
		{"zero stall timeout", func(c *Config) { c.StallTimeoutSeconds = 0 }},
		{"empty bind address", func(c *Config) { c.BindAddress = "" }},
		{"bad read timeout", func(c *Config) { c.ReadTimeout = "fast" }},
		{"bad timestamp policy", func(c *Config) { c.TimestampPolicy = "midnight" }},
		{"empty radar params", func(c *Config) { c.Radar.NumSamples = 0; c.Radar.FrameSizeBytes = 0 }},
		{"empty dataset root", func(c *Config) { c.DatasetRoot = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate accepted %s", tc.name)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()
	if cfg.GetReadTimeout().Milliseconds() != 100 {
		t.Errorf("GetReadTimeout = %v, want 100ms", cfg.GetReadTimeout())
	}
	if cfg.GetStallTimeout().Seconds() != 3 {
		t.Errorf("GetStallTimeout = %v, want 3s", cfg.GetStallTimeout())
	}
	cfg.ReadTimeout = "250ms"
	if cfg.GetReadTimeout().Milliseconds() != 250 {
		t.Errorf("GetReadTimeout = %v, want 250ms", cfg.GetReadTimeout())
	}
}
