package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if len(c.Relays) == 0 {
		return errors.New("relays is required")
	}
	for _, url := range c.Relays {
		if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
			return fmt.Errorf("relay %q must be a ws:// or wss:// url", url)
		}
	}

	if c.Reconnect.FlappingMinSamples < 1 {
		return errors.New("reconnect.flapping_min_samples must be >= 1")
	}
	if c.Reconnect.ShortLivedThreshold <= 0 {
		return errors.New("reconnect.short_lived_threshold must be positive")
	}
	if c.Reconnect.Cooldown <= 0 {
		return errors.New("reconnect.cooldown must be positive")
	}
	if c.Reconnect.NoticeDelay <= 0 {
		return errors.New("reconnect.notice_delay must be positive")
	}

	if c.Transport.EventBuffer < 1 {
		return errors.New("transport.event_buffer must be >= 1")
	}
	if c.Transport.PingInterval >= c.Transport.PingTimeout {
		return fmt.Errorf("transport.ping_interval (%v) must be below ping_timeout (%v)",
			c.Transport.PingInterval, c.Transport.PingTimeout)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
