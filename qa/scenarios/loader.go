// Package scenarios replays scripted dispatch scenarios against a
// coordinator running on the in-memory transport and a fake clock.
package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamsaleh11/DroneSystem/core/fault"
	"github.com/adamsaleh11/DroneSystem/core/model"
)

// HeartbeatDef is a heartbeat sent on behalf of an agent. A nil capacity
// leaves the coordinator's value unchanged.
type HeartbeatDef struct {
	Agent    int     `yaml:"agent"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	State    string  `yaml:"state"`
	Capacity *int    `yaml:"capacity,omitempty"`
}

// IncidentDef is an incident report. ID names the incident in later steps
// and expectations.
type IncidentDef struct {
	ID       string `yaml:"id"`
	Zone     int    `yaml:"zone"`
	Type     string `yaml:"type"`
	Severity string `yaml:"severity"`
	Resource int    `yaml:"resource,omitempty"`
}

func (d IncidentDef) ToModel(at time.Time) model.Incident {
	typ := d.Type
	if typ == "" {
		typ = "FIRE_DETECTED"
	}
	inc := model.NewIncident(d.Zone, typ, model.ParseSeverity(d.Severity), d.Resource, at)
	inc.ID = model.IncidentID(d.ID)
	return inc
}

// AgentIncident names an agent and one of the scenario's incidents.
type AgentIncident struct {
	Agent    int    `yaml:"agent"`
	Incident string `yaml:"incident"`
}

// FaultDef is a fault reported by an agent.
type FaultDef struct {
	Agent int    `yaml:"agent"`
	Kind  string `yaml:"kind"`
}

// Description returns the canonical text for the named kind.
func (f FaultDef) Description() string {
	for _, k := range []fault.Kind{fault.KindStuck, fault.KindNozzle, fault.KindPacketLoss} {
		if k.String() == f.Kind {
			return fault.Description(k)
		}
	}
	return f.Kind
}

// Step is one scenario action. Exactly one field should be set.
type Step struct {
	Heartbeat *HeartbeatDef  `yaml:"heartbeat,omitempty"`
	Incident  *IncidentDef   `yaml:"incident,omitempty"`
	Complete  *AgentIncident `yaml:"complete,omitempty"`
	Reassign  *AgentIncident `yaml:"reassign,omitempty"`
	Fault     *FaultDef      `yaml:"fault,omitempty"`
	Tick      bool           `yaml:"tick,omitempty"`
	AdvanceMS int            `yaml:"advance_ms,omitempty"`
}

// Expected is checked after the last step. Assigned maps an incident to
// the agent that received its most recent Assign.
type Expected struct {
	Assigned  map[string]int `yaml:"assigned"`
	Completed []string       `yaml:"completed"`
	Pending   []string       `yaml:"pending"`
	Available []int          `yaml:"available"`
	Offline   []int          `yaml:"offline"`
	Faulted   []int          `yaml:"faulted"`
}

type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Zones       []model.Zone `yaml:"zones"`
	Steps       []Step       `yaml:"steps"`
	Expected    Expected     `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario name is required", path)
	}
	return &sc, nil
}
