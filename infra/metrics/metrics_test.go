package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamsaleh11/DroneSystem/core/events"
	"github.com/adamsaleh11/DroneSystem/core/factory"
	coremetrics "github.com/adamsaleh11/DroneSystem/core/metrics"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
	"github.com/adamsaleh11/DroneSystem/internal/eventbus"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type memSink struct {
	mu          sync.Mutex
	dispatches  []coremetrics.DispatchRecord
	completions []coremetrics.CompletionRecord
	faults      []coremetrics.FaultRecord
	fleet       []coremetrics.FleetRecord
}

func (m *memSink) RecordDispatch(r coremetrics.DispatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, r)
	return nil
}

func (m *memSink) RecordCompletion(r coremetrics.CompletionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, r)
	return nil
}

func (m *memSink) RecordFault(r coremetrics.FaultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, r)
	return nil
}

func (m *memSink) RecordFleet(r coremetrics.FleetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fleet = append(m.fleet, r)
	return nil
}

func (m *memSink) fleetLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fleet)
}

func TestPromSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordDispatch(coremetrics.DispatchRecord{Reroute: true, Accepted: true}))
	require.NoError(t, s.RecordDispatch(coremetrics.DispatchRecord{Accepted: false}))
	require.NoError(t, s.RecordCompletion(coremetrics.CompletionRecord{Zone: 2, Severity: "High", ResponseTime: 42 * time.Second}))
	require.NoError(t, s.RecordFault(coremetrics.FaultRecord{Kind: "stuck"}))
	require.NoError(t, s.RecordFleet(coremetrics.FleetRecord{Agents: 3, Available: 2, Pending: 4}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.assignments.WithLabelValues("reroute", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.assignments.WithLabelValues("idle", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.completions.WithLabelValues("2", "High")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.faults.WithLabelValues("stuck", "reported")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.agents.WithLabelValues("total")))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.incidents.WithLabelValues("pending")))

	// a second sink on the same registry reuses the collectors
	again, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	assert.Same(t, s.assignments, again.assignments)
}

func TestInfluxSinkWritesLineProtocol(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	require.NoError(t, sink.RecordDispatch(coremetrics.DispatchRecord{
		IncidentID: "abc", AgentID: 2, Zone: 1, Severity: "High", Distance: 70.71067, Accepted: true, Time: at,
	}))
	require.NoError(t, sink.RecordCompletion(coremetrics.CompletionRecord{
		IncidentID: "abc", AgentID: 2, Zone: 1, Severity: "High", ResponseTime: 1500 * time.Millisecond, Time: at,
	}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.True(t, strings.HasPrefix(bodies[0], "assignment,"), bodies[0])
	assert.Contains(t, bodies[0], "agent_id=2")
	assert.Contains(t, bodies[0], "distance=70.711")
	assert.Contains(t, bodies[1], "response_s=1.5")
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL, Token: "tok", Org: "org", Bucket: "bucket"})
	assert.True(t, called)
	assert.IsType(t, coremetrics.NopSink{}, sink)
}

func TestRecordEvent(t *testing.T) {
	sink := &memSink{}
	inc := model.NewIncident(1, "FIRE_DETECTED", model.SeverityLow, 0, at)
	done := inc
	done.CompletedAt = at.Add(time.Minute)

	require.NoError(t, recordEvent(sink, events.AssignmentEvent{AgentID: 1, Incident: inc, Err: errors.New("x")}))
	require.NoError(t, recordEvent(sink, events.IncidentEvent{Incident: inc, Action: events.IncidentReceived}))
	require.NoError(t, recordEvent(sink, events.IncidentEvent{Incident: done, Action: events.IncidentCompleted, AgentID: 1}))
	require.NoError(t, recordEvent(sink, events.FaultEvent{AgentID: 1, Kind: "nozzle", Recovered: true}))

	require.Len(t, sink.dispatches, 1)
	assert.False(t, sink.dispatches[0].Accepted)
	require.Len(t, sink.completions, 1)
	assert.Equal(t, time.Minute, sink.completions[0].ResponseTime)
	require.Len(t, sink.faults, 1)
	assert.True(t, sink.faults[0].Recovered)
}

func TestStartEventCollector(t *testing.T) {
	sink := &memSink{}
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	require.Eventually(t, func() bool {
		bus.Publish(events.FaultEvent{AgentID: 3, Kind: "stuck"})
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.faults) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartFleetSampler(t *testing.T) {
	sink := &memSink{}
	clk := clock.NewFake(at)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartFleetSampler(ctx, clk, time.Second, func() coremetrics.FleetRecord {
		return coremetrics.FleetRecord{Agents: 2}
	}, sink)
	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		return sink.fleetLen() > 0
	}, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 2, sink.fleet[0].Agents)
	assert.False(t, sink.fleet[0].Time.IsZero())
}

func TestFactoryRegistrations(t *testing.T) {
	s, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, s)

	s, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "prometheus"}})
	require.NoError(t, err)
	assert.IsType(t, &coremetrics.MultiSink{}, s)
}
