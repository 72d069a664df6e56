package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/adamsaleh11/DroneSystem/core/metrics"
)

// PromSink records dispatch activity in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	completions *prometheus.CounterVec
	response    *prometheus.HistogramVec
	faults      *prometheus.CounterVec
	agents      *prometheus.GaugeVec
	incidents   *prometheus.GaugeVec
}

// NewPromSink registers the sink's metrics on the default Prometheus
// registerer. The /metrics endpoint is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drone_assignments_total",
			Help: "Assignment attempts by mode and send outcome",
		}, []string{"mode", "accepted"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drone_incidents_completed_total",
			Help: "Completed incidents by zone and severity",
		}, []string{"zone", "severity"}),
		response: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drone_incident_response_seconds",
			Help:    "Time between incident report and completion",
			Buckets: []float64{5, 10, 30, 60, 120, 300, 600},
		}, []string{"severity"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drone_agent_faults_total",
			Help: "Agent faults by kind and phase",
		}, []string{"kind", "phase"}),
		agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drone_fleet_agents",
			Help: "Agents by status",
		}, []string{"status"}),
		incidents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "drone_ledger_incidents",
			Help: "Incidents by ledger status",
		}, []string{"status"}),
	}
	var err error
	if s.assignments, err = register(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.completions, err = register(reg, s.completions); err != nil {
		return nil, err
	}
	if s.response, err = register(reg, s.response); err != nil {
		return nil, err
	}
	if s.faults, err = register(reg, s.faults); err != nil {
		return nil, err
	}
	if s.agents, err = register(reg, s.agents); err != nil {
		return nil, err
	}
	if s.incidents, err = register(reg, s.incidents); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) RecordDispatch(r coremetrics.DispatchRecord) error {
	mode := "idle"
	if r.Reroute {
		mode = "reroute"
	}
	s.assignments.WithLabelValues(mode, strconv.FormatBool(r.Accepted)).Inc()
	return nil
}

func (s *PromSink) RecordCompletion(r coremetrics.CompletionRecord) error {
	s.completions.WithLabelValues(strconv.Itoa(r.Zone), r.Severity).Inc()
	s.response.WithLabelValues(r.Severity).Observe(r.ResponseTime.Seconds())
	return nil
}

func (s *PromSink) RecordFault(r coremetrics.FaultRecord) error {
	phase := "reported"
	if r.Recovered {
		phase = "recovered"
	}
	s.faults.WithLabelValues(r.Kind, phase).Inc()
	return nil
}

func (s *PromSink) RecordFleet(r coremetrics.FleetRecord) error {
	s.agents.WithLabelValues("total").Set(float64(r.Agents))
	s.agents.WithLabelValues("available").Set(float64(r.Available))
	s.agents.WithLabelValues("offline").Set(float64(r.Offline))
	s.agents.WithLabelValues("faulted").Set(float64(r.Faulted))
	s.incidents.WithLabelValues("pending").Set(float64(r.Pending))
	s.incidents.WithLabelValues("completed").Set(float64(r.Completed))
	return nil
}
