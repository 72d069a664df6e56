package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	incidentsDispatched *prometheus.CounterVec
	dispatchDistance    prometheus.Histogram
	assignSendFailures  prometheus.Counter
	incidentsRerouted   prometheus.Counter
	pendingIncidents    prometheus.Gauge
	offlineAgents       prometheus.Gauge
)

func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, prometheus.Counter, prometheus.Counter, prometheus.Gauge, prometheus.Gauge) {
	disp := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidents_dispatched_total",
			Help: "Number of incidents assigned to an agent",
		},
		[]string{"mode"},
	)
	dist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_distance_units",
		Help:    "Distance between the chosen agent and the incident target",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800},
	})
	fail := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assign_send_failures_total",
		Help: "Number of assignment datagrams that could not be sent",
	})
	rer := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "incidents_rerouted_total",
		Help: "Number of incidents displaced by a reroute",
	})
	pend := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pending_incidents",
		Help: "Incidents waiting for an agent",
	})
	off := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offline_agents",
		Help: "Agents marked offline by the staleness sweep",
	})
	return disp, dist, fail, rer, pend, off
}

func init() {
	incidentsDispatched, dispatchDistance, assignSendFailures, incidentsRerouted, pendingIncidents, offlineAgents = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(incidentsDispatched, dispatchDistance, assignSendFailures, incidentsRerouted, pendingIncidents, offlineAgents)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	incidentsDispatched, dispatchDistance, assignSendFailures, incidentsRerouted, pendingIncidents, offlineAgents = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
