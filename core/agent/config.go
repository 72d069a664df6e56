package agent

import (
	"fmt"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

// Config describes one simulated agent.
type Config struct {
	ID       int         `json:"id"`
	Base     model.Point `json:"base"`
	Speed    float64     `json:"speed"`
	Capacity int         `json:"capacity"`

	DropDurationMS      int `json:"drop_duration_ms"`
	HeartbeatIntervalMS int `json:"heartbeat_interval_ms"`
	ReceiveTimeoutMS    int `json:"receive_timeout_ms"`

	// The watchdog countdown is drawn from [WatchdogMinSeconds,
	// WatchdogMaxSeconds). A zero max disables it.
	WatchdogMinSeconds int `json:"watchdog_min_seconds"`
	WatchdogMaxSeconds int `json:"watchdog_max_seconds"`

	MaxRetries      int   `json:"max_retries"`
	RetryIntervalMS int   `json:"retry_interval_ms"`
	Seed            int64 `json:"seed"`
}

func (c *Config) SetDefaults() {
	if c.Speed == 0 {
		c.Speed = 20
	}
	if c.Capacity == 0 {
		c.Capacity = 50
	}
	if c.DropDurationMS == 0 {
		c.DropDurationMS = 2000
	}
	if c.HeartbeatIntervalMS == 0 {
		c.HeartbeatIntervalMS = 1000
	}
	if c.ReceiveTimeoutMS == 0 {
		c.ReceiveTimeoutMS = 1000
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryIntervalMS == 0 {
		c.RetryIntervalMS = 1000
	}
	if c.Seed == 0 {
		c.Seed = int64(c.ID)
	}
}

func (c Config) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("agent id must be positive")
	}
	if c.Speed <= 0 {
		return fmt.Errorf("agent %d: speed must be positive", c.ID)
	}
	if c.WatchdogMaxSeconds > 0 && c.WatchdogMinSeconds >= c.WatchdogMaxSeconds {
		return fmt.Errorf("agent %d: watchdog range [%d,%d) is empty", c.ID, c.WatchdogMinSeconds, c.WatchdogMaxSeconds)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
