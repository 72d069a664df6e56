package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/adamsaleh11/DroneSystem/core/coordinator"
	"github.com/adamsaleh11/DroneSystem/core/factory"
	"github.com/adamsaleh11/DroneSystem/core/metrics"
)

type Config struct {
	Coordinator coordinator.Config   `json:"coordinator"`
	Zones       ZonesConfig          `json:"zones"`
	Transport   TransportConfig      `json:"transport"`
	Fleet       FleetConfig          `json:"fleet"`
	Metrics     metrics.Config       `json:"metrics"`
	Logging     LoggingConfig        `json:"logging"`
	EventLog    factory.ModuleConfig `json:"event_log"`
	Sentry      SentryConfig         `json:"sentry"`
	Monitor     MonitorConfig        `json:"monitor"`
}

// MonitorConfig controls the read-only HTTP views. An empty address
// disables them. Token, when set, guards the audit log endpoint.
type MonitorConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every section defaulted, as used
// when no file is given.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

func (c *Config) SetDefaults() {
	c.Coordinator.SetDefaults()
	c.Transport.SetDefaults()
	c.Fleet.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
	if c.EventLog.Type == "" {
		c.EventLog.Type = "nop"
	}
}

func (c Config) Validate() error {
	if err := c.Coordinator.Validate(); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	if err := c.Zones.Validate(); err != nil {
		return fmt.Errorf("zones: %w", err)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if err := c.Fleet.Validate(); err != nil {
		return fmt.Errorf("fleet: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Sentry.Validate(); err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	return nil
}
