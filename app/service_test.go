package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamsaleh11/DroneSystem/config"
	"github.com/adamsaleh11/DroneSystem/core/agent"
	coreeventlog "github.com/adamsaleh11/DroneSystem/core/eventlog"
	"github.com/adamsaleh11/DroneSystem/core/factory"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/core/protocol"
	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/infra/transport"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Transport.Type = "memory"
	cfg.Zones.Zones = []model.Zone{
		{ID: 1, Min: model.Point{X: 0, Y: 0}, Max: model.Point{X: 100, Y: 100}},
	}
	cfg.Coordinator.Dispatch.TickIntervalMS = 20
	cfg.Coordinator.ReceiveTimeoutMS = 50
	cfg.EventLog = factory.ModuleConfig{
		Type: "jsonl",
		Conf: map[string]any{"path": filepath.Join(t.TempDir(), "events.jsonl")},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestLoadZones(t *testing.T) {
	_, err := LoadZones(config.ZonesConfig{})
	assert.Error(t, err)

	dir, err := LoadZones(config.ZonesConfig{Zones: []model.Zone{{ID: 3, Max: model.Point{X: 10, Y: 10}}}})
	require.NoError(t, err)
	z, ok := dir.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, model.Point{X: 5, Y: 5}, z.Center())

	_, err = LoadZones(config.ZonesConfig{File: filepath.Join(t.TempDir(), "missing.csv")})
	assert.Error(t, err)
}

func TestNewTransport(t *testing.T) {
	tr, err := NewTransport(config.TransportConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &transport.Memory{}, tr)

	_, err = NewTransport(config.TransportConfig{Type: "smoke-signals"}, nil)
	assert.Error(t, err)
}

func TestNewWithTransportRejectsUnknownSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "carbon"}}
	_, err := NewWithTransport(cfg, transport.NewMemory(), clock.Real())
	assert.Error(t, err)
}

func TestServiceAssignsAndRecords(t *testing.T) {
	cfg := testConfig(t)
	tr := transport.NewMemory()
	svc, err := NewWithTransport(cfg, tr, clock.Real())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	hb := protocol.Heartbeat{AgentID: 1, Position: model.Point{}, State: model.StateIdle, Capacity: 50}
	inc := model.NewIncident(1, "FIRE_DETECTED", model.SeverityHigh, 0, time.Now())
	require.Eventually(t, func() bool {
		return tr.Send(coretransport.AgentsEndpoint, hb.Encode()) == nil && len(svc.Coordinator.Fleet()) == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, tr.Send(coretransport.IncidentEndpoint, protocol.IncidentReport{Incident: inc}.Encode()))

	require.Eventually(t, func() bool {
		return len(tr.SentTo(coretransport.AgentEndpoint(1))) > 0
	}, 5*time.Second, 20*time.Millisecond)
	msg, err := protocol.Decode(tr.SentTo(coretransport.AgentEndpoint(1))[0])
	require.NoError(t, err)
	assign, ok := msg.(protocol.Assign)
	require.True(t, ok)
	assert.Equal(t, inc.ID, assign.Incident.ID)

	require.Eventually(t, func() bool {
		recs, err := svc.Store().Query(context.Background(), coreeventlog.Query{Category: coreeventlog.CategoryAssignment})
		return err == nil && len(recs) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, svc.Close())
}

func TestServiceWithFleetCompletesIncident(t *testing.T) {
	cfg := testConfig(t)
	tr := transport.NewMemory()
	svc, err := NewWithTransport(cfg, tr, clock.Real())
	require.NoError(t, err)
	fleet, err := NewFleet([]agent.Config{{
		ID:                  1,
		Speed:               2000,
		DropDurationMS:      20,
		HeartbeatIntervalMS: 20,
		ReceiveTimeoutMS:    20,
	}}, tr, clock.Real(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svcDone := make(chan error, 1)
	go func() { svcDone <- svc.Run(ctx) }()
	fleetDone := make(chan error, 1)
	go func() { fleetDone <- fleet.Run(ctx) }()
	require.Eventually(t, func() bool { return svc.Coordinator.Stats().Agents == 1 }, 5*time.Second, 10*time.Millisecond)

	inc := model.NewIncident(1, "FIRE_DETECTED", model.SeverityModerate, 0, time.Now())
	require.NoError(t, tr.Send(coretransport.IncidentEndpoint, protocol.IncidentReport{Incident: inc}.Encode()))

	require.Eventually(t, func() bool { return len(svc.Coordinator.Completed()) == 1 }, 10*time.Second, 20*time.Millisecond)
	done := svc.Coordinator.Completed()[0]
	assert.Equal(t, inc.ID, done.ID)
	assert.True(t, done.Completed())

	cancel()
	require.NoError(t, <-fleetDone)
	require.NoError(t, <-svcDone)
	require.NoError(t, svc.Close())
}

func TestNewFleetValidates(t *testing.T) {
	_, err := NewFleet(nil, transport.NewMemory(), nil, nil)
	assert.Error(t, err)
	_, err = NewFleet([]agent.Config{{ID: 0}}, transport.NewMemory(), nil, nil)
	assert.Error(t, err)
}
