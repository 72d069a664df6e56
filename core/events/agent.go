package events

import (
	"time"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

type AgentAction string

const (
	AgentDiscovered AgentAction = "discovered"
	AgentOffline    AgentAction = "offline"
	AgentRevived    AgentAction = "revived"
)

// AgentEvent tracks fleet membership changes.
type AgentEvent struct {
	AgentID int
	Action  AgentAction
	State   model.AgentState
	Time    time.Time
}

// FaultEvent is published when a fault is reported and again when the agent
// has been reset.
type FaultEvent struct {
	AgentID   int
	Kind      string
	Text      string
	Diagnosis string
	Incident  *model.Incident
	Recovered bool
	Time      time.Time
}
