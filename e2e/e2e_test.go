package e2e

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamsaleh11/DroneSystem/app"
	"github.com/adamsaleh11/DroneSystem/config"
	"github.com/adamsaleh11/DroneSystem/core/agent"
	coreeventlog "github.com/adamsaleh11/DroneSystem/core/eventlog"
	"github.com/adamsaleh11/DroneSystem/core/factory"
	coremetrics "github.com/adamsaleh11/DroneSystem/core/metrics"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/infra/metrics"
	"github.com/adamsaleh11/DroneSystem/infra/replay"
	"github.com/adamsaleh11/DroneSystem/infra/transport"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
)

func TestMQTTDispatchRoundTrip(t *testing.T) {
	requireDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	broker := startMosquitto(ctx, t)

	cfg := config.Default()
	cfg.Transport = config.TransportConfig{Type: "mqtt", MQTT: transport.MQTTConfig{Broker: broker, TopicPrefix: "e2e"}}
	cfg.Zones.Zones = []model.Zone{{ID: 1, Min: model.Point{X: 0, Y: 0}, Max: model.Point{X: 100, Y: 100}}}
	cfg.Coordinator.Dispatch.TickIntervalMS = 50
	cfg.EventLog = factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(t.TempDir(), "audit.db")}}
	require.NoError(t, cfg.Validate())

	svcTr, err := app.NewTransport(cfg.Transport, nil)
	require.NoError(t, err)
	svc, err := app.NewWithTransport(cfg, svcTr, clock.Real())
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()

	fleetTr, err := app.NewTransport(cfg.Transport, nil)
	require.NoError(t, err)
	defer func() { _ = fleetTr.Close() }()
	fleet, err := app.NewFleet([]agent.Config{{ID: 1, Speed: 500, DropDurationMS: 100, HeartbeatIntervalMS: 100}}, fleetTr, nil, nil)
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	svcDone := make(chan error, 1)
	go func() { svcDone <- svc.Run(runCtx) }()
	fleetDone := make(chan error, 1)
	go func() { fleetDone <- fleet.Run(runCtx) }()

	require.Eventually(t, func() bool { return svc.Coordinator.Stats().Agents == 1 }, 30*time.Second, 100*time.Millisecond)

	reporterTr, err := app.NewTransport(cfg.Transport, nil)
	require.NoError(t, err)
	defer func() { _ = reporterTr.Close() }()
	inc := model.NewIncident(1, "FIRE_DETECTED", model.SeverityHigh, 0, time.Now())
	require.NoError(t, replay.New(reporterTr, nil, 0, nil).Send(inc))

	require.Eventually(t, func() bool {
		done := svc.Coordinator.Completed()
		return len(done) == 1 && done[0].ID == inc.ID
	}, 30*time.Second, 100*time.Millisecond)

	require.Eventually(t, func() bool {
		recs, err := svc.Store().Query(ctx, coreeventlog.Query{IncidentID: string(inc.ID), Category: coreeventlog.CategoryCompleted})
		return err == nil && len(recs) == 1
	}, 10*time.Second, 100*time.Millisecond)

	stop()
	assert.NoError(t, <-fleetDone)
	assert.NoError(t, <-svcDone)
}

func TestInfluxSinkWrites(t *testing.T) {
	requireDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	url := startInflux(ctx, t)

	reader := NewInfluxReader(url, influxOrg, influxBucket, influxToken)
	defer reader.Close()
	require.NoError(t, reader.SetupBucket(ctx))

	sink := metrics.NewInfluxSinkWithFallback(metrics.InfluxConfig{URL: url, Token: influxToken, Org: influxOrg, Bucket: influxBucket})
	require.IsType(t, &metrics.InfluxSink{}, sink)

	now := time.Now()
	require.NoError(t, sink.RecordCompletion(coremetrics.CompletionRecord{
		IncidentID: "e2e-1", AgentID: 1, Zone: 1, Severity: "High", ResponseTime: 42 * time.Second, Time: now,
	}))
	require.NoError(t, sink.RecordFleet(coremetrics.FleetRecord{Agents: 3, Available: 2, Pending: 1, Time: now}))

	require.Eventually(t, func() bool {
		n, err := reader.Count(ctx, "incident_completed")
		return err == nil && n > 0
	}, 20*time.Second, 200*time.Millisecond)
	n, err := reader.Count(ctx, "fleet_snapshot")
	require.NoError(t, err)
	assert.Positive(t, n)
}
