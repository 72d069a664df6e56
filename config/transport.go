package config

import (
	"fmt"

	"github.com/adamsaleh11/DroneSystem/infra/transport"
)

// TransportConfig selects how datagrams travel between processes.
type TransportConfig struct {
	// Type is "udp", "mqtt" or "memory". The memory transport only
	// connects components living in the same process.
	Type string               `json:"type"`
	UDP  transport.UDPConfig  `json:"udp"`
	MQTT transport.MQTTConfig `json:"mqtt"`
}

func (c *TransportConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "udp"
	}
	c.UDP.SetDefaults()
	if c.Type == "mqtt" {
		c.MQTT.SetDefaults()
	}
}

func (c TransportConfig) Validate() error {
	switch c.Type {
	case "udp", "memory":
		return nil
	case "mqtt":
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required")
		}
		return nil
	}
	return fmt.Errorf("unknown transport type %q", c.Type)
}
