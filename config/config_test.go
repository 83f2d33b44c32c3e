package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "bridge.yaml", "serviceId: \"1234\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ModeConsole, cfg.Mode)
	assert.Equal(t, "1234", cfg.ServiceID)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Etcd.DialTimeout)
	assert.Equal(t, int64(10), cfg.Etcd.TTL)
	assert.Equal(t, "127.0.0.1:9000", cfg.AdvertiseAddr())
}

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeFile(t, "bridge.yaml", `
mode: vab-tcp
listen: ":9000"
advertise: 10.0.0.5:9000
logLevel: debug
metricsAddr: ":9100"
timeout: 2s
rateLimit:
  rate: 100
  burst: 20
etcd:
  endpoints: [127.0.0.1:2379]
  ttl: 30
types:
  - tag: S
    codec: string
services:
  - id: "1"
    name: Upper
    version: "1.0"
    kind: TRANSFORMATION
    factory: upper
    inputs: [S]
`))
	require.NoError(t, err)

	assert.Equal(t, ModeVABTCP, cfg.Mode)
	assert.Equal(t, "10.0.0.5:9000", cfg.AdvertiseAddr())
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, RateLimitConfig{Rate: 100, Burst: 20}, cfg.RateLimit)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, int64(30), cfg.Etcd.TTL)

	m, err := cfg.LoadManifest()
	require.NoError(t, err)
	require.Len(t, m.Services, 1)
	assert.Equal(t, "upper", m.Services[0].Factory)
	assert.Equal(t, "S", m.Types[0].Tag)
}

func TestLoadManifestFile(t *testing.T) {
	manifest := writeFile(t, "manifest.yaml", `
services:
  - id: "7"
    name: Echo
    factory: echo
`)
	cfg, err := Load(writeFile(t, "bridge.yaml", "mode: vab-http\nmanifest: "+manifest+"\n"))
	require.NoError(t, err)

	m, err := cfg.LoadManifest()
	require.NoError(t, err)
	require.Len(t, m.Services, 1)
	assert.Equal(t, "7", m.Services[0].ID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "carrier-pigeon" }},
		{"console without service", func(c *Config) { c.ServiceID = "" }},
		{"ws without listen", func(c *Config) { c.Mode = ModeWebSocket; c.Listen = "" }},
		{"rate without burst", func(c *Config) { c.RateLimit = RateLimitConfig{Rate: 1} }},
		{"negative rate", func(c *Config) { c.RateLimit = RateLimitConfig{Rate: -1, Burst: 1} }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
		{"etcd without ttl", func(c *Config) { c.Etcd = EtcdConfig{Endpoints: []string{"x:2379"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ServiceID = "1"
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "mode: [unclosed\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "mode: teleport\nserviceId: x\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}
