package config

import (
	"fmt"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

// ZonesConfig names the zone file or lists zones inline. A file wins when
// both are set. Only the coordinator needs zones.
type ZonesConfig struct {
	File  string       `json:"file"`
	Zones []model.Zone `json:"zones"`
}

func (c ZonesConfig) Validate() error {
	seen := make(map[int]bool, len(c.Zones))
	for _, z := range c.Zones {
		if seen[z.ID] {
			return fmt.Errorf("duplicate zone %d", z.ID)
		}
		seen[z.ID] = true
	}
	return nil
}
