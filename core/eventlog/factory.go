package eventlog

import "github.com/adamsaleh11/DroneSystem/core/factory"

var storeRegistry = factory.NewRegistry[Store]()

// RegisterStore adds a store factory identified by name.
func RegisterStore(name string, f factory.Factory[Store]) error {
	return storeRegistry.Register(name, f)
}

// NewStore builds the configured store. An empty type disables the log.
func NewStore(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" || cfg.Type == "nop" {
		return NopStore{}, nil
	}
	return storeRegistry.Create(cfg)
}
