package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL string `yaml:"server_url"`
	// Username is generated per run when empty.
	Username string `yaml:"username"`
	Language string `yaml:"language"`

	ProtocolVersionMin   int `yaml:"protocol_version_min"`
	ProtocolVersionMax   int `yaml:"protocol_version_max"`
	SerializationVersion int `yaml:"serialization_version"`

	MediaCacheDir  string `yaml:"media_cache_dir"`
	MediaIndexPath string `yaml:"media_index_path"`

	// MeshWorkers of 0 means one per CPU.
	MeshWorkers        int `yaml:"mesh_workers"`
	PositionIntervalMs int `yaml:"position_interval_ms"`
	ViewRange          int `yaml:"view_range"`

	HandshakeTimeoutMs int `yaml:"handshake_timeout_ms"`
	ReadTimeoutMs      int `yaml:"read_timeout_ms"`
	WriteTimeoutMs     int `yaml:"write_timeout_ms"`

	TraceDir     string `yaml:"trace_dir"`
	StrictSchema bool   `yaml:"strict_schema"`
	Debug        bool   `yaml:"debug"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

func Defaults() Config {
	return Config{
		ServerURL:            "ws://localhost:30000/v1/ws",
		Language:             "en",
		ProtocolVersionMin:   46,
		ProtocolVersionMax:   46,
		SerializationVersion: 29,
		MediaCacheDir:        "cache/media",
		PositionIntervalMs:   100,
		ViewRange:            10,
		HandshakeTimeoutMs:   10_000,
		WriteTimeoutMs:       5_000,
	}
}

// Load reads a YAML file and fills every unset field from Defaults.
func Load(path string) (Config, error) {
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("client.yaml: %w", err)
	}
	c.fill(Defaults())
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) fill(d Config) {
	if c.ServerURL == "" {
		c.ServerURL = d.ServerURL
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.ProtocolVersionMin == 0 {
		c.ProtocolVersionMin = d.ProtocolVersionMin
	}
	if c.ProtocolVersionMax == 0 {
		c.ProtocolVersionMax = d.ProtocolVersionMax
	}
	if c.SerializationVersion == 0 {
		c.SerializationVersion = d.SerializationVersion
	}
	if c.MediaCacheDir == "" {
		c.MediaCacheDir = d.MediaCacheDir
	}
	if c.PositionIntervalMs == 0 {
		c.PositionIntervalMs = d.PositionIntervalMs
	}
	if c.ViewRange == 0 {
		c.ViewRange = d.ViewRange
	}
	if c.HandshakeTimeoutMs == 0 {
		c.HandshakeTimeoutMs = d.HandshakeTimeoutMs
	}
	if c.WriteTimeoutMs == 0 {
		c.WriteTimeoutMs = d.WriteTimeoutMs
	}
}

func (c Config) Validate() error {
	if c.ProtocolVersionMin > c.ProtocolVersionMax {
		return fmt.Errorf("protocol_version_min %d > protocol_version_max %d", c.ProtocolVersionMin, c.ProtocolVersionMax)
	}
	if c.PositionIntervalMs < 0 || c.MeshWorkers < 0 || c.ViewRange < 0 {
		return fmt.Errorf("negative interval, worker count or view range")
	}
	if len(c.Username) > 20 {
		return fmt.Errorf("username %q longer than 20 bytes", c.Username)
	}
	return nil
}

func (c Config) PositionInterval() time.Duration {
	return time.Duration(c.PositionIntervalMs) * time.Millisecond
}

func (c Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMs) * time.Millisecond
}

func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}
