package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultShortLivedThreshold = 5 * time.Second
	DefaultCooldown            = 60 * time.Second
	DefaultNoticeDelay         = 2 * time.Second
	DefaultFlappingMinSamples  = 10
	DefaultFlappingMaxStdDev   = time.Second
	DefaultSignalBuffer        = 64
	DefaultHandshakeTimeout    = 10 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultPingInterval        = 30 * time.Second
	DefaultPingTimeout         = 60 * time.Second
	DefaultEventBuffer         = 256
	DefaultNoticeBuffer        = 16
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
)

func (c *Config) applyDefaults() {
	// Reconnect defaults
	if c.Reconnect.ShortLivedThreshold == 0 {
		c.Reconnect.ShortLivedThreshold = DefaultShortLivedThreshold
	}
	if c.Reconnect.Cooldown == 0 {
		c.Reconnect.Cooldown = DefaultCooldown
	}
	if c.Reconnect.NoticeDelay == 0 {
		c.Reconnect.NoticeDelay = DefaultNoticeDelay
	}
	if c.Reconnect.FlappingMinSamples == 0 {
		c.Reconnect.FlappingMinSamples = DefaultFlappingMinSamples
	}
	if c.Reconnect.FlappingMaxStdDev == 0 {
		c.Reconnect.FlappingMaxStdDev = DefaultFlappingMaxStdDev
	}
	if c.Reconnect.SignalBuffer == 0 {
		c.Reconnect.SignalBuffer = DefaultSignalBuffer
	}

	// Transport defaults
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = DefaultPingTimeout
	}
	if c.Transport.EventBuffer == 0 {
		c.Transport.EventBuffer = DefaultEventBuffer
	}
	if c.Transport.NoticeBuffer == 0 {
		c.Transport.NoticeBuffer = DefaultNoticeBuffer
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
