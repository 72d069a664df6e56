package metrics

import (
	"time"

	"github.com/adamsaleh11/DroneSystem/core/factory"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PromAddr is the listen address of the /metrics endpoint. Empty
	// disables the endpoint.
	PromAddr string `json:"prom_addr"`
	// FleetIntervalMS is how often fleet snapshots are recorded.
	FleetIntervalMS int `json:"fleet_interval_ms"`
}

func (c *Config) SetDefaults() {
	if c.FleetIntervalMS == 0 {
		c.FleetIntervalMS = 5000
	}
}

func (c Config) FleetInterval() time.Duration {
	return time.Duration(c.FleetIntervalMS) * time.Millisecond
}
