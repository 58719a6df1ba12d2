package transport

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrStaleConnection  = errors.New("connection stale (no ping)")
	ErrConnectionClosed = errors.New("connection closed")
	ErrDuplicateSubID   = errors.New("subscription id already active")
	ErrDuplicatePublish = errors.New("event already awaiting acknowledgment")
)

// Config configures a WebSocket transport client.
type Config struct {
	HandshakeTimeout time.Duration // dial handshake deadline
	WriteTimeout     time.Duration // write deadline for sends
	PingInterval     time.Duration // keepalive ping cadence
	PingTimeout      time.Duration // max time without ping/pong before the connection is stale
	EventBuffer      int           // per-subscription event channel buffer
	NoticeBuffer     int           // notice channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		EventBuffer:      256,
		NoticeBuffer:     16,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = def.EventBuffer
	}
	if c.NoticeBuffer == 0 {
		c.NoticeBuffer = def.NoticeBuffer
	}
}
