package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/agent"
	"github.com/adamsaleh11/DroneSystem/core/logger"
	"github.com/adamsaleh11/DroneSystem/core/protocol"
	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
)

const flushTimeout = 2 * time.Second

// Fleet runs a set of simulated agents on one transport.
type Fleet struct {
	agents []*agent.Agent
	tr     coretransport.Transport
	log    logger.Logger
	wg     sync.WaitGroup
}

// NewFleet validates cfgs and builds one agent per entry.
func NewFleet(cfgs []agent.Config, tr coretransport.Transport, clk clock.Clock, log logger.Logger) (*Fleet, error) {
	if clk == nil {
		clk = clock.Real()
	}
	log = logger.OrNop(log)
	f := &Fleet{tr: tr, log: log}
	for _, c := range cfgs {
		c.SetDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		f.agents = append(f.agents, agent.New(c, tr, clk, log))
	}
	if len(f.agents) == 0 {
		return nil, fmt.Errorf("fleet has no agents")
	}
	return f, nil
}

// Agents returns the simulated agents in configuration order.
func (f *Fleet) Agents() []*agent.Agent { return f.agents }

// Run starts every agent and blocks until ctx is canceled, then wakes each
// agent with STOP and waits for them to exit.
func (f *Fleet) Run(ctx context.Context) error {
	errs := make(chan error, len(f.agents))
	for _, a := range f.agents {
		sub := a.Transitions()
		f.wg.Add(2)
		go func() {
			defer f.wg.Done()
			for t := range sub {
				f.log.Infof("agent %d: %s -> %s", t.AgentID, t.From, t.To)
			}
		}()
		go func() {
			defer f.wg.Done()
			if err := a.Run(ctx); err != nil {
				a.Stop()
				errs <- fmt.Errorf("agent %d: %w", a.ID(), err)
			}
		}()
	}
	f.log.Infof("fleet of %d agents running", len(f.agents))

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
	}
	for _, a := range f.agents {
		_ = f.tr.Send(coretransport.AgentEndpoint(a.ID()), protocol.Stop{}.Encode())
	}
	f.wg.Wait()
	return err
}
