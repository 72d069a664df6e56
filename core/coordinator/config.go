package coordinator

import (
	"fmt"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/dispatch"
	"github.com/adamsaleh11/DroneSystem/core/fault"
)

// Config groups the coordinator's tunables.
type Config struct {
	Dispatch         dispatch.Config `json:"dispatch"`
	Fault            fault.Config    `json:"fault"`
	ReceiveTimeoutMS int             `json:"receive_timeout_ms"`
}

func (c *Config) SetDefaults() {
	c.Dispatch.SetDefaults()
	c.Fault.SetDefaults()
	if c.ReceiveTimeoutMS == 0 {
		c.ReceiveTimeoutMS = 1000
	}
}

func (c Config) Validate() error {
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if c.Fault.RecoveryDelayMS <= 0 {
		return fmt.Errorf("fault.recovery_delay_ms must be positive")
	}
	if c.ReceiveTimeoutMS < 0 {
		return fmt.Errorf("receive_timeout_ms must not be negative")
	}
	return nil
}

func (c Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.ReceiveTimeoutMS) * time.Millisecond
}
