package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
relays:
  - wss://relay.example.com
  - ws://localhost:7777
reconnect:
  cooldown: 30s
  flapping_min_samples: 20
transport:
  ping_interval: 10s
metrics:
  port: 9191
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Relays) != 2 {
		t.Fatalf("len(Relays) = %d, want 2", len(cfg.Relays))
	}
	if cfg.Relays[0] != "wss://relay.example.com" {
		t.Errorf("Relays[0] = %q, want %q", cfg.Relays[0], "wss://relay.example.com")
	}
	if cfg.Reconnect.Cooldown != 30*time.Second {
		t.Errorf("Reconnect.Cooldown = %v, want 30s", cfg.Reconnect.Cooldown)
	}
	if cfg.Reconnect.FlappingMinSamples != 20 {
		t.Errorf("Reconnect.FlappingMinSamples = %d, want 20", cfg.Reconnect.FlappingMinSamples)
	}
	if cfg.Transport.PingInterval != 10*time.Second {
		t.Errorf("Transport.PingInterval = %v, want 10s", cfg.Transport.PingInterval)
	}
	if cfg.Metrics.Port != 9191 {
		t.Errorf("Metrics.Port = %d, want 9191", cfg.Metrics.Port)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_RELAY_URL", "wss://private.example.com")

	yaml := `
relays:
  - ${TEST_RELAY_URL}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Relays[0] != "wss://private.example.com" {
		t.Errorf("Relays[0] = %q, want %q", cfg.Relays[0], "wss://private.example.com")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
relays:
  - wss://relay.example.com
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Reconnect.ShortLivedThreshold != DefaultShortLivedThreshold {
		t.Errorf("Reconnect.ShortLivedThreshold = %v, want default %v",
			cfg.Reconnect.ShortLivedThreshold, DefaultShortLivedThreshold)
	}
	if cfg.Reconnect.Cooldown != DefaultCooldown {
		t.Errorf("Reconnect.Cooldown = %v, want default %v", cfg.Reconnect.Cooldown, DefaultCooldown)
	}
	if cfg.Reconnect.FlappingMinSamples != DefaultFlappingMinSamples {
		t.Errorf("Reconnect.FlappingMinSamples = %d, want default %d",
			cfg.Reconnect.FlappingMinSamples, DefaultFlappingMinSamples)
	}
	if cfg.Transport.PingTimeout != DefaultPingTimeout {
		t.Errorf("Transport.PingTimeout = %v, want default %v", cfg.Transport.PingTimeout, DefaultPingTimeout)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Relays: []string{"wss://relay.example.com"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing relays",
			mutate:  func(c *Config) { c.Relays = nil },
			wantErr: "relays is required",
		},
		{
			name:    "non-websocket relay url",
			mutate:  func(c *Config) { c.Relays = []string{"https://relay.example.com"} },
			wantErr: `relay "https://relay.example.com" must be a ws:// or wss:// url`,
		},
		{
			name:    "negative flapping samples",
			mutate:  func(c *Config) { c.Reconnect.FlappingMinSamples = -1 },
			wantErr: "reconnect.flapping_min_samples must be >= 1",
		},
		{
			name:    "ping interval above timeout",
			mutate:  func(c *Config) { c.Transport.PingInterval = 2 * time.Minute },
			wantErr: "transport.ping_interval (2m0s) must be below ping_timeout (1m0s)",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error %q, got nil", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load of missing file should fail")
	}
}
