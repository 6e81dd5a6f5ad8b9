package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "config.toml")
	content := `
port = 6683
instance_name = "demo-sensor"
resource_path = "/sensors/humidity/"
update_interval = "2s"
non_confirmable_notifications = true
advertise = false
txt_records = ["if=sensor"]
ack_timeout = "500ms"
max_retransmit = 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != 6683 {
		t.Errorf("unexpected port: %d", cfg.Port)
	}
	if cfg.Instance != "demo-sensor" {
		t.Errorf("unexpected instance: %q", cfg.Instance)
	}
	if cfg.ResourcePath != "sensors/humidity" {
		t.Errorf("path not trimmed: %q", cfg.ResourcePath)
	}
	if cfg.Interval != 2*time.Second {
		t.Errorf("unexpected interval: %v", cfg.Interval)
	}
	if !cfg.NonConfirm {
		t.Error("expected non-confirmable notifications")
	}
	if cfg.Advertise {
		t.Error("expected advertise disabled")
	}
	if cfg.Params.AckTimeout != 500*time.Millisecond {
		t.Errorf("unexpected ack timeout: %v", cfg.Params.AckTimeout)
	}
	if cfg.Params.MaxRetransmit != 2 {
		t.Errorf("unexpected max retransmit: %d", cfg.Params.MaxRetransmit)
	}
	// Unset keys keep their defaults.
	if cfg.Params.AckRandomFactor != 1.5 {
		t.Errorf("unexpected ack random factor: %v", cfg.Params.AckRandomFactor)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"bad interval", `update_interval = "soon"`},
		{"bad port", `port = 70000`},
		{"empty path", `resource_path = "/"`},
		{"bad ack timeout", `ack_timeout = "fast"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := loadConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
