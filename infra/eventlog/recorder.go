package eventlog

import (
	"context"
	"fmt"

	"github.com/adamsaleh11/DroneSystem/core/events"
	coreeventlog "github.com/adamsaleh11/DroneSystem/core/eventlog"
	"github.com/adamsaleh11/DroneSystem/core/logger"
	"github.com/adamsaleh11/DroneSystem/internal/eventbus"
)

// Recorder writes bus events to a Store.
type Recorder struct {
	store coreeventlog.Store
	log   logger.Logger
}

func NewRecorder(store coreeventlog.Store, log logger.Logger) *Recorder {
	return &Recorder{store: store, log: logger.OrNop(log)}
}

// Run consumes the bus until ctx is done or the bus is closed.
func (r *Recorder) Run(ctx context.Context, bus eventbus.EventBus) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			r.Record(ctx, ev)
		}
	}
}

// Record appends the audit entry for ev, if it has one.
func (r *Recorder) Record(ctx context.Context, ev eventbus.Event) {
	rec, ok := ToRecord(ev)
	if !ok {
		return
	}
	if err := r.store.Append(ctx, rec); err != nil {
		r.log.Errorf("event log append: %v", err)
	}
}

// ToRecord maps a bus event to its audit entry.
func ToRecord(ev eventbus.Event) (coreeventlog.Record, bool) {
	switch e := ev.(type) {
	case events.IncidentEvent:
		rec := coreeventlog.Record{
			Timestamp:  e.Time,
			AgentID:    e.AgentID,
			IncidentID: string(e.Incident.ID),
			Zone:       e.Incident.Zone,
			Severity:   e.Incident.Severity.String(),
		}
		desc := fmt.Sprintf("Zone %d %s %s", e.Incident.Zone, e.Incident.EventType, e.Incident.Severity)
		switch e.Action {
		case events.IncidentReceived:
			rec.Category, rec.Message = coreeventlog.CategoryPending, desc
		case events.IncidentRequeued:
			rec.Category = coreeventlog.CategoryPending
			rec.Message = fmt.Sprintf("%s re-queued from agent %d (%s)", desc, e.AgentID, e.Reason)
		case events.IncidentDropped:
			rec.Category = coreeventlog.CategoryPending
			rec.Message = fmt.Sprintf("%s dropped: %s", desc, e.Reason)
		case events.IncidentCompleted:
			rec.Category = coreeventlog.CategoryCompleted
			rec.Message = fmt.Sprintf("%s handled by agent %d, response time %s", desc, e.AgentID, e.Incident.ResponseTime())
		default:
			return rec, false
		}
		return rec, true
	case events.AssignmentEvent:
		rec := coreeventlog.Record{
			Timestamp:  e.Time,
			Category:   coreeventlog.CategoryAssignment,
			AgentID:    e.AgentID,
			IncidentID: string(e.Incident.ID),
			Zone:       e.Incident.Zone,
			Severity:   e.Incident.Severity.String(),
		}
		switch {
		case e.Err != nil:
			rec.Message = fmt.Sprintf("Agent %d assignment to zone %d failed: %v", e.AgentID, e.Incident.Zone, e.Err)
		case e.Reroute:
			rec.Message = fmt.Sprintf("Agent %d rerouted to zone %d %s, %.1f away", e.AgentID, e.Incident.Zone, e.Target, e.Distance)
		default:
			rec.Message = fmt.Sprintf("Agent %d dispatched to zone %d %s, %.1f away", e.AgentID, e.Incident.Zone, e.Target, e.Distance)
		}
		return rec, true
	case events.FaultEvent:
		rec := coreeventlog.Record{Timestamp: e.Time, Category: coreeventlog.CategoryFault, AgentID: e.AgentID}
		if e.Incident != nil {
			rec.IncidentID = string(e.Incident.ID)
			rec.Zone = e.Incident.Zone
		}
		if e.Recovered {
			rec.Message = fmt.Sprintf("Agent %d reset after %s fault", e.AgentID, e.Kind)
		} else {
			rec.Message = fmt.Sprintf("Agent %d %s. Suggested fix: %s", e.AgentID, e.Text, e.Diagnosis)
		}
		return rec, true
	case events.AgentEvent:
		if e.Action != events.AgentOffline {
			return coreeventlog.Record{}, false
		}
		return coreeventlog.Record{
			Timestamp: e.Time,
			Category:  coreeventlog.CategoryOffline,
			AgentID:   e.AgentID,
			Message:   fmt.Sprintf("Agent %d stopped reporting", e.AgentID),
		}, true
	}
	return coreeventlog.Record{}, false
}
