package app

import (
	"fmt"

	"github.com/adamsaleh11/DroneSystem/config"
	"github.com/adamsaleh11/DroneSystem/core/logger"
	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/core/zone"
	"github.com/adamsaleh11/DroneSystem/infra/transport"
	"github.com/adamsaleh11/DroneSystem/infra/zones"
)

// NewTransport builds the datagram transport selected by cfg.Type.
func NewTransport(cfg config.TransportConfig, log logger.Logger) (coretransport.Transport, error) {
	switch cfg.Type {
	case "udp":
		return transport.NewUDP(cfg.UDP)
	case "mqtt":
		return transport.NewMQTT(cfg.MQTT, log)
	case "memory":
		return transport.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
}

// LoadZones builds the zone directory from the zone file, or from the
// inline list when no file is set.
func LoadZones(cfg config.ZonesConfig) (*zone.Static, error) {
	list := cfg.Zones
	if cfg.File != "" {
		var err error
		if list, err = zones.Load(cfg.File); err != nil {
			return nil, fmt.Errorf("load zones %s: %w", cfg.File, err)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no zones configured")
	}
	return zone.NewStatic(list)
}
