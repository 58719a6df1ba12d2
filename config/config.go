package config

import "time"

// Config is the root configuration for a relay monitor instance.
type Config struct {
	Relays    []string        `yaml:"relays"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ReconnectConfig holds the reconnection policy tunables.
type ReconnectConfig struct {
	// ShortLivedThreshold classifies a connection that died within it as
	// short-lived; short-lived connections cool down before reconnecting.
	ShortLivedThreshold time.Duration `yaml:"short_lived_threshold"`

	// Cooldown is the reconnect delay after a short-lived connection.
	Cooldown time.Duration `yaml:"cooldown"`

	// NoticeDelay is the reconnect delay after a connection-limiting
	// operator notice.
	NoticeDelay time.Duration `yaml:"notice_delay"`

	// FlappingMinSamples is the minimum connection-lifetime sample count
	// before the flapping heuristic applies.
	FlappingMinSamples int `yaml:"flapping_min_samples"`

	// FlappingMaxStdDev classifies the connection as flapping when the
	// lifetime standard deviation falls below it.
	FlappingMaxStdDev time.Duration `yaml:"flapping_max_stddev"`

	// SignalBuffer is the per-connection signal channel capacity.
	SignalBuffer int `yaml:"signal_buffer"`
}

// TransportConfig holds WebSocket transport settings.
type TransportConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	EventBuffer      int           `yaml:"event_buffer"`
	NoticeBuffer     int           `yaml:"notice_buffer"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
