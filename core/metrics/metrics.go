package metrics

import (
	"errors"
	"time"
)

// DispatchRecord is one assignment attempt.
type DispatchRecord struct {
	IncidentID string
	AgentID    int
	Zone       int
	Severity   string
	Distance   float64
	Reroute    bool
	Accepted   bool
	Time       time.Time
}

// CompletionRecord is one completed incident.
type CompletionRecord struct {
	IncidentID   string
	AgentID      int
	Zone         int
	Severity     string
	ResponseTime time.Duration
	Time         time.Time
}

// FaultRecord is one agent fault.
type FaultRecord struct {
	AgentID   int
	Kind      string
	Recovered bool
	Time      time.Time
}

// FleetRecord is a periodic snapshot of fleet and queue sizes.
type FleetRecord struct {
	Agents    int
	Available int
	Offline   int
	Faulted   int
	Pending   int
	Completed int
	Time      time.Time
}

// MetricsSink records dispatch activity for observability purposes.
type MetricsSink interface {
	RecordDispatch(DispatchRecord) error
	RecordCompletion(CompletionRecord) error
	RecordFault(FaultRecord) error
	RecordFleet(FleetRecord) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchRecord) error     { return nil }
func (NopSink) RecordCompletion(CompletionRecord) error { return nil }
func (NopSink) RecordFault(FaultRecord) error           { return nil }
func (NopSink) RecordFleet(FleetRecord) error           { return nil }

// MultiSink fans records out to several sinks. Every sink is called even if
// an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) each(fn func(MetricsSink) error) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordDispatch(r DispatchRecord) error {
	return m.each(func(s MetricsSink) error { return s.RecordDispatch(r) })
}

func (m *MultiSink) RecordCompletion(r CompletionRecord) error {
	return m.each(func(s MetricsSink) error { return s.RecordCompletion(r) })
}

func (m *MultiSink) RecordFault(r FaultRecord) error {
	return m.each(func(s MetricsSink) error { return s.RecordFault(r) })
}

func (m *MultiSink) RecordFleet(r FleetRecord) error {
	return m.each(func(s MetricsSink) error { return s.RecordFleet(r) })
}
