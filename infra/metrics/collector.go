package metrics

import (
	"context"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/events"
	coremetrics "github.com/adamsaleh11/DroneSystem/core/metrics"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
	"github.com/adamsaleh11/DroneSystem/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = recordEvent(sink, ev)
			}
		}
	}()
}

func recordEvent(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.AssignmentEvent:
		return sink.RecordDispatch(coremetrics.DispatchRecord{
			IncidentID: string(e.Incident.ID),
			AgentID:    e.AgentID,
			Zone:       e.Incident.Zone,
			Severity:   e.Incident.Severity.String(),
			Distance:   e.Distance,
			Reroute:    e.Reroute,
			Accepted:   e.Err == nil,
			Time:       e.Time,
		})
	case events.IncidentEvent:
		if e.Action != events.IncidentCompleted {
			return nil
		}
		return sink.RecordCompletion(coremetrics.CompletionRecord{
			IncidentID:   string(e.Incident.ID),
			AgentID:      e.AgentID,
			Zone:         e.Incident.Zone,
			Severity:     e.Incident.Severity.String(),
			ResponseTime: e.Incident.ResponseTime(),
			Time:         e.Time,
		})
	case events.FaultEvent:
		return sink.RecordFault(coremetrics.FaultRecord{
			AgentID:   e.AgentID,
			Kind:      e.Kind,
			Recovered: e.Recovered,
			Time:      e.Time,
		})
	}
	return nil
}

// StartFleetSampler records a fleet snapshot every interval until ctx is
// done.
func StartFleetSampler(ctx context.Context, clk clock.Clock, interval time.Duration,
	snapshot func() coremetrics.FleetRecord, sink coremetrics.MetricsSink) {
	if sink == nil || snapshot == nil || interval <= 0 {
		return
	}
	t := clk.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				rec := snapshot()
				rec.Time = clk.Now()
				_ = sink.RecordFleet(rec)
			}
		}
	}()
}
