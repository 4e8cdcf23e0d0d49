package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_visible_particles: 500
  launch_speed: 3
capture:
  iface: eth0
  bpf: "tcp port 443"
remote:
  flush_interval: 200ms
hosts:
  seen_db: /tmp/seen
  cloud_ranges: [aws]
  highlight: [cloudflare, google]
  labels:
    10.0.0.0/8: lab
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.MaxVisibleParticles != 500 {
		t.Errorf("Expected max particles 500, got %d", cfg.Engine.MaxVisibleParticles)
	}
	if cfg.Engine.LaunchSpeed != 3 {
		t.Errorf("Expected launch speed 3, got %v", cfg.Engine.LaunchSpeed)
	}
	if cfg.Engine.LaunchAngleJitter != 0.1 {
		t.Errorf("Expected default jitter 0.1 to survive, got %v", cfg.Engine.LaunchAngleJitter)
	}
	if cfg.Engine.Width != 1280 || cfg.Engine.Height != 720 {
		t.Errorf("Expected default window 1280x720, got %dx%d", cfg.Engine.Width, cfg.Engine.Height)
	}
	if cfg.Capture.Iface != "eth0" || cfg.Capture.BPF != "tcp port 443" {
		t.Errorf("Expected capture eth0 / tcp port 443, got %q / %q", cfg.Capture.Iface, cfg.Capture.BPF)
	}
	if cfg.Capture.SnapLen != 1600 {
		t.Errorf("Expected default snaplen 1600, got %d", cfg.Capture.SnapLen)
	}
	if got := cfg.FlushInterval(); got != 200*time.Millisecond {
		t.Errorf("Expected flush interval 200ms, got %v", got)
	}
	if cfg.Hosts.CacheDir != "data/cache" || len(cfg.Hosts.CloudRanges) != 1 {
		t.Errorf("Unexpected cache dir / cloud ranges: %q / %v", cfg.Hosts.CacheDir, cfg.Hosts.CloudRanges)
	}
	if len(cfg.Hosts.Highlight) != 2 || cfg.Hosts.Labels["10.0.0.0/8"] != "lab" {
		t.Errorf("Unexpected hosts section: %+v", cfg.Hosts)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"negative speed", "engine:\n  launch_speed: -1\n", "launch_speed"},
		{"both sources", "capture:\n  iface: eth0\n  pcap_file: x.pcap\n", "mutually exclusive"},
		{"bad interval", "remote:\n  flush_interval: soon\n", "flush_interval"},
		{"bad label", "hosts:\n  seen_db: x\n  labels:\n    not-a-cidr: x\n", "not-a-cidr"},
		{"labels without store", "hosts:\n  cloud_ranges: [aws]\n", "seen_db"},
		{"bad yaml", "engine: [\n", "unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Expected an error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file, got nil")
	}
}

func TestFlushIntervalFallback(t *testing.T) {
	cfg := Default()
	cfg.Remote.FlushInterval = ""
	if got := cfg.FlushInterval(); got != 50*time.Millisecond {
		t.Errorf("Expected 50ms fallback, got %v", got)
	}
}
