// Package config loads the YAML file shared by the viewer and the probe.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the simulation defaults the viewer starts with.
type EngineConfig struct {
	Width               int     `yaml:"width"`
	Height              int     `yaml:"height"`
	TPS                 int     `yaml:"tps"`
	MaxVisibleParticles uint32  `yaml:"max_visible_particles"`
	LaunchAngleJitter   float64 `yaml:"launch_angle_jitter"`
	LaunchSpeed         float64 `yaml:"launch_speed"`
	ArrivalDistance     float64 `yaml:"arrival_distance"`
	HostRadius          float64 `yaml:"host_radius"`
	GeoLayout           bool    `yaml:"geo_layout"`
	CaptureDir          string  `yaml:"capture_dir"`
}

// CaptureConfig selects where packets come from.
type CaptureConfig struct {
	Iface       string `yaml:"iface"`
	BPF         string `yaml:"bpf"`
	PcapFile    string `yaml:"pcap_file"`
	Pace        bool   `yaml:"pace"`
	SnapLen     int32  `yaml:"snaplen"`
	Promiscuous bool   `yaml:"promiscuous"`
}

// RemoteConfig configures the websocket and NATS transports.
type RemoteConfig struct {
	Listen        string `yaml:"listen"`
	URL           string `yaml:"url"`
	NATSURL       string `yaml:"nats_url"`
	NATSSubject   string `yaml:"nats_subject"`
	FlushInterval string `yaml:"flush_interval"`
}

// HostsConfig points at the enrichment databases. MMDB and WorldMap may be
// URLs, downloaded once into CacheDir.
type HostsConfig struct {
	MMDB        string            `yaml:"mmdb"`
	WorldMap    string            `yaml:"world_geojson"`
	SeenDB      string            `yaml:"seen_db"`
	CacheDir    string            `yaml:"cache_dir"`
	Highlight   []string          `yaml:"highlight"`
	Labels      map[string]string `yaml:"labels"`
	CloudRanges []string          `yaml:"cloud_ranges"`
}

type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Capture CaptureConfig `yaml:"capture"`
	Remote  RemoteConfig  `yaml:"remote"`
	Hosts   HostsConfig   `yaml:"hosts"`
}

func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Width:               1280,
			Height:              720,
			TPS:                 60,
			MaxVisibleParticles: 10000,
			LaunchAngleJitter:   0.1,
			LaunchSpeed:         1.5,
			ArrivalDistance:     8,
			HostRadius:          10,
		},
		Capture: CaptureConfig{
			SnapLen:     1600,
			Promiscuous: true,
		},
		Remote: RemoteConfig{
			Listen:        ":8080",
			NATSSubject:   "packets.observed",
			FlushInterval: "50ms",
		},
		Hosts: HostsConfig{
			CacheDir: "data/cache",
		},
	}
}

// Load reads path and overlays it on Default. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// FlushInterval parses Remote.FlushInterval, falling back to 50ms when unset.
func (c *Config) FlushInterval() time.Duration {
	d, err := time.ParseDuration(c.Remote.FlushInterval)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond
	}
	return d
}

func (c *Config) Validate() error {
	var errs []error
	e := c.Engine
	if e.Width <= 0 || e.Height <= 0 {
		errs = append(errs, fmt.Errorf("engine: window size %dx%d must be positive", e.Width, e.Height))
	}
	if e.TPS <= 0 {
		errs = append(errs, fmt.Errorf("engine: tps %d must be positive", e.TPS))
	}
	if e.LaunchSpeed <= 0 {
		errs = append(errs, fmt.Errorf("engine: launch_speed %v must be positive", e.LaunchSpeed))
	}
	if e.LaunchAngleJitter < 0 {
		errs = append(errs, fmt.Errorf("engine: launch_angle_jitter %v must not be negative", e.LaunchAngleJitter))
	}
	if e.ArrivalDistance < 0 || e.HostRadius <= 0 {
		errs = append(errs, errors.New("engine: arrival_distance must not be negative and host_radius must be positive"))
	}
	if c.Capture.Iface != "" && c.Capture.PcapFile != "" {
		errs = append(errs, errors.New("capture: iface and pcap_file are mutually exclusive"))
	}
	if c.Remote.FlushInterval != "" {
		if _, err := time.ParseDuration(c.Remote.FlushInterval); err != nil {
			errs = append(errs, fmt.Errorf("remote: flush_interval: %w", err))
		}
	}
	for cidr := range c.Hosts.Labels {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			errs = append(errs, fmt.Errorf("hosts: label %q: %w", cidr, err))
		}
	}
	if (len(c.Hosts.CloudRanges) > 0 || len(c.Hosts.Labels) > 0) && c.Hosts.SeenDB == "" {
		errs = append(errs, errors.New("hosts: labels and cloud_ranges need seen_db to store them"))
	}
	return errors.Join(errs...)
}
