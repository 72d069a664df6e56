package dispatch

import (
	"fmt"
	"time"
)

// Config defines dispatch-related settings.
type Config struct {
	// RerouteThreshold is the idle distance beyond which in-flight agents
	// are considered for a reroute.
	RerouteThreshold       float64 `json:"reroute_threshold"`
	RerouteCooldownSeconds int     `json:"reroute_cooldown_seconds"`
	TickIntervalMS         int     `json:"tick_interval_ms"`
	StaleTimeoutSeconds    int     `json:"stale_timeout_seconds"`
	// AckTimeoutSeconds bounds how long an assigned agent may keep
	// reporting IDLE before its assignment is reclaimed.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
}

func (c *Config) SetDefaults() {
	if c.RerouteThreshold == 0 {
		c.RerouteThreshold = 200
	}
	if c.RerouteCooldownSeconds == 0 {
		c.RerouteCooldownSeconds = 60
	}
	if c.TickIntervalMS == 0 {
		c.TickIntervalMS = 1000
	}
	if c.StaleTimeoutSeconds == 0 {
		c.StaleTimeoutSeconds = 30
	}
	if c.AckTimeoutSeconds == 0 {
		c.AckTimeoutSeconds = 5
	}
}

func (c Config) Validate() error {
	if c.RerouteThreshold < 0 {
		return fmt.Errorf("reroute_threshold must not be negative")
	}
	if c.RerouteCooldownSeconds <= 0 || c.TickIntervalMS <= 0 || c.StaleTimeoutSeconds <= 0 || c.AckTimeoutSeconds <= 0 {
		return fmt.Errorf("dispatch intervals must be positive")
	}
	return nil
}

func (c Config) Cooldown() time.Duration { return time.Duration(c.RerouteCooldownSeconds) * time.Second }

func (c Config) TickInterval() time.Duration { return time.Duration(c.TickIntervalMS) * time.Millisecond }

func (c Config) StaleTimeout() time.Duration { return time.Duration(c.StaleTimeoutSeconds) * time.Second }

func (c Config) AckTimeout() time.Duration { return time.Duration(c.AckTimeoutSeconds) * time.Second }
