package config

import (
	"fmt"

	"github.com/adamsaleh11/DroneSystem/core/agent"
)

// FleetConfig describes the simulated agents run by the fleet command.
// Explicit Agents take precedence; otherwise Count agents are generated
// from Defaults with ids 1..Count.
type FleetConfig struct {
	Agents   []agent.Config `json:"agents"`
	Count    int            `json:"count"`
	Defaults agent.Config   `json:"defaults"`
}

func (c *FleetConfig) SetDefaults() {
	if len(c.Agents) == 0 && c.Count == 0 {
		c.Count = 3
	}
}

// Resolve returns the defaulted per-agent configurations.
func (c FleetConfig) Resolve() []agent.Config {
	var out []agent.Config
	if len(c.Agents) > 0 {
		out = make([]agent.Config, 0, len(c.Agents))
		for _, a := range c.Agents {
			a.SetDefaults()
			out = append(out, a)
		}
		return out
	}
	for id := 1; id <= c.Count; id++ {
		a := c.Defaults
		a.ID = id
		a.Seed = 0
		a.SetDefaults()
		out = append(out, a)
	}
	return out
}

func (c FleetConfig) Validate() error {
	if c.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	seen := make(map[int]bool)
	for _, a := range c.Resolve() {
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent %d", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}
