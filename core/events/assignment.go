package events

import (
	"time"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

// AssignmentEvent is emitted for every assignment attempt that reached the
// transport. Err is set when the send failed and the assignment was rolled
// back.
type AssignmentEvent struct {
	AgentID   int
	Incident  model.Incident
	Target    model.Point
	Distance  float64
	Reroute   bool
	Displaced *model.Incident
	Err       error
	Time      time.Time
}
