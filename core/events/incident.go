package events

import (
	"time"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

// IncidentAction describes what happened to an incident.
type IncidentAction string

const (
	IncidentReceived  IncidentAction = "received"
	IncidentDuplicate IncidentAction = "duplicate"
	IncidentRequeued  IncidentAction = "requeued"
	IncidentDropped   IncidentAction = "dropped"
	IncidentCompleted IncidentAction = "completed"
)

// IncidentEvent is published whenever the ledger changes for an incident.
type IncidentEvent struct {
	Incident model.Incident
	Action   IncidentAction
	AgentID  int
	Reason   string
	Time     time.Time
}
