package relay

import (
	"errors"
	"time"
)

// Errors
var (
	ErrInvalidState          = errors.New("invalid state for connect")
	ErrNotConnected          = errors.New("not connected")
	ErrMissingSubscriptionID = errors.New("subscription handle has no id")
	ErrDuplicateSubscription = errors.New("subscription id already attached")
)

// Config tunes the connection manager's reconnection policy.
type Config struct {
	// ShortLivedThreshold classifies a completed connection as short-lived;
	// a short-lived connection triggers the cooldown before reconnecting.
	ShortLivedThreshold time.Duration

	// ReconnectCooldown is the delay before reconnecting after a
	// short-lived connection.
	ReconnectCooldown time.Duration

	// NoticeReconnectDelay is the delay before reconnecting after a
	// connection-limiting operator notice forced a disconnect.
	NoticeReconnectDelay time.Duration

	// FlappingMinSamples is the minimum number of completed connection
	// lifetimes required before the flapping heuristic applies; fewer
	// samples are never flapping.
	FlappingMinSamples int

	// FlappingMaxStdDev classifies the connection as flapping when the
	// population standard deviation of recorded lifetimes falls below it.
	// A tight low-variance cluster indicates a fast repeating connect/drop
	// cycle rather than occasional unrelated failures.
	FlappingMaxStdDev time.Duration

	// SignalBuffer is the capacity of the signal channel.
	SignalBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShortLivedThreshold:  5 * time.Second,
		ReconnectCooldown:    60 * time.Second,
		NoticeReconnectDelay: 2 * time.Second,
		FlappingMinSamples:   10,
		FlappingMaxStdDev:    time.Second,
		SignalBuffer:         64,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ShortLivedThreshold == 0 {
		c.ShortLivedThreshold = def.ShortLivedThreshold
	}
	if c.ReconnectCooldown == 0 {
		c.ReconnectCooldown = def.ReconnectCooldown
	}
	if c.NoticeReconnectDelay == 0 {
		c.NoticeReconnectDelay = def.NoticeReconnectDelay
	}
	if c.FlappingMinSamples == 0 {
		c.FlappingMinSamples = def.FlappingMinSamples
	}
	if c.FlappingMaxStdDev == 0 {
		c.FlappingMaxStdDev = def.FlappingMaxStdDev
	}
	if c.SignalBuffer == 0 {
		c.SignalBuffer = def.SignalBuffer
	}
}
