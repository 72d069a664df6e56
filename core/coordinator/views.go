package coordinator

import (
	"time"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

type timeValue struct{ t time.Time }

// Stats is a summary of fleet and ledger sizes.
type Stats struct {
	Agents    int           `json:"agents"`
	Available int           `json:"available"`
	Offline   int           `json:"offline"`
	Faulted   int           `json:"faulted"`
	Pending   int           `json:"pending"`
	Completed int           `json:"completed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Fleet returns a copy of every agent status keyed by id.
func (c *Coordinator) Fleet() map[int]model.AgentStatus { return c.fleet.Statuses() }

// Agent returns one agent's status.
func (c *Coordinator) Agent(id int) (model.AgentStatus, bool) { return c.fleet.Get(id) }

// Pending returns the queued incidents in dispatch order.
func (c *Coordinator) Pending() []model.Incident { return c.ledger.Pending() }

// Completed returns the completed incidents in completion order.
func (c *Coordinator) Completed() []model.Incident { return c.ledger.Completed() }

// Elapsed is the time since the first incident was received, zero before.
func (c *Coordinator) Elapsed() time.Duration {
	first := c.firstIncident.Load()
	if first == nil {
		return 0
	}
	return c.clk.Now().Sub(first.t)
}

// DistanceToTarget is the remaining straight-line distance of an agent that
// holds an incident.
func (c *Coordinator) DistanceToTarget(id int) (float64, bool) {
	st, ok := c.fleet.Get(id)
	if !ok || st.CurrentIncident == nil {
		return 0, false
	}
	return model.Distance(st.Position, st.Target), true
}

// Stats summarizes the current fleet and ledger.
func (c *Coordinator) Stats() Stats {
	s := Stats{Pending: c.ledger.Len(), Completed: len(c.ledger.Completed()), Elapsed: c.Elapsed()}
	for _, a := range c.fleet.Snapshot() {
		s.Agents++
		if a.Available {
			s.Available++
		}
		switch a.State {
		case model.StateOffline:
			s.Offline++
		case model.StateFault:
			s.Faulted++
		}
	}
	return s
}
