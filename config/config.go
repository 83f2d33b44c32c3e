// Package config loads the YAML configuration of the bridge binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vab-bridge/loader"
)

// Mode selects the transport the bridge serves.
type Mode string

const (
	ModeConsole   Mode = "console"  // dispatch over stdin/stdout
	ModeWebSocket Mode = "ws"       // dispatch over one WebSocket peer
	ModeVABTCP    Mode = "vab-tcp"  // operations over VAB/TCP
	ModeVABHTTP   Mode = "vab-http" // operations over VAB/HTTP
)

var ErrInvalid = errors.New("config: invalid")

// Config is the complete bridge configuration.
type Config struct {
	Mode      Mode   `yaml:"mode"`
	ServiceID string `yaml:"serviceId"` // service addressed by console/ws messages
	Listen    string `yaml:"listen"`
	Advertise string `yaml:"advertise"` // address announced in etcd, defaults to Listen
	LogLevel  string `yaml:"logLevel"`

	// MetricsAddr serves /metrics on its own listener when set.
	MetricsAddr string `yaml:"metricsAddr"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`
	// Timeout bounds VAB handlers; zero disables it.
	Timeout time.Duration `yaml:"timeout"`

	Etcd EtcdConfig `yaml:"etcd"`

	// ManifestPath names a separate manifest file. Types and services given
	// inline are used when it is empty.
	ManifestPath string `yaml:"manifest"`

	loader.Manifest `yaml:",inline"`
}

// RateLimitConfig configures the token bucket on the VAB handler chain.
// A zero rate disables limiting.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// EtcdConfig configures endpoint announcement. No endpoints, no announcement.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	TTL         int64         `yaml:"ttl"`
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	return &Config{
		Mode:     ModeConsole,
		Listen:   "127.0.0.1:9000",
		LogLevel: "info",
		Etcd: EtcdConfig{
			DialTimeout: 5 * time.Second,
			TTL:         10,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for the selected mode.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeConsole, ModeWebSocket:
		if c.ServiceID == "" {
			return fmt.Errorf("%w: serviceId is required in %s mode", ErrInvalid, c.Mode)
		}
	case ModeVABTCP, ModeVABHTTP:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalid, c.Mode)
	}
	if c.Mode != ModeConsole && c.Listen == "" {
		return fmt.Errorf("%w: listen is required in %s mode", ErrInvalid, c.Mode)
	}
	if c.RateLimit.Rate < 0 {
		return fmt.Errorf("%w: negative rate limit", ErrInvalid)
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("%w: rate limit needs a positive burst", ErrInvalid)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalid)
	}
	if len(c.Etcd.Endpoints) > 0 && c.Etcd.TTL <= 0 {
		return fmt.Errorf("%w: etcd ttl must be positive", ErrInvalid)
	}
	return nil
}

// AdvertiseAddr returns the address to announce.
func (c *Config) AdvertiseAddr() string {
	if c.Advertise != "" {
		return c.Advertise
	}
	return c.Listen
}

// LoadManifest returns the manifest file when one is configured, else the
// inline manifest.
func (c *Config) LoadManifest() (*loader.Manifest, error) {
	if c.ManifestPath == "" {
		return &c.Manifest, nil
	}
	return loader.ReadManifest(c.ManifestPath)
}
