package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/adamsaleh11/DroneSystem/core/metrics"
	"github.com/adamsaleh11/DroneSystem/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket the sink writes to.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes dispatch records to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDispatch writes one assignment attempt.
func (s *InfluxSink) RecordDispatch(r coremetrics.DispatchRecord) error {
	p := write.NewPointWithMeasurement("assignment").
		AddTag("agent_id", strconv.Itoa(r.AgentID)).
		AddTag("zone", strconv.Itoa(r.Zone)).
		AddTag("severity", r.Severity).
		AddTag("reroute", strconv.FormatBool(r.Reroute)).
		AddTag("accepted", strconv.FormatBool(r.Accepted)).
		AddField("incident_id", r.IncidentID).
		AddField("distance", round3(r.Distance)).
		SetTime(r.Time)
	return s.write(p)
}

// RecordCompletion writes a completed incident with its response time.
func (s *InfluxSink) RecordCompletion(r coremetrics.CompletionRecord) error {
	p := write.NewPointWithMeasurement("incident_completed").
		AddTag("agent_id", strconv.Itoa(r.AgentID)).
		AddTag("zone", strconv.Itoa(r.Zone)).
		AddTag("severity", r.Severity).
		AddField("incident_id", r.IncidentID).
		AddField("response_s", round3(r.ResponseTime.Seconds())).
		SetTime(r.Time)
	return s.write(p)
}

// RecordFault writes a fault report or recovery.
func (s *InfluxSink) RecordFault(r coremetrics.FaultRecord) error {
	p := write.NewPointWithMeasurement("agent_fault").
		AddTag("agent_id", strconv.Itoa(r.AgentID)).
		AddTag("kind", r.Kind).
		AddField("recovered", r.Recovered).
		SetTime(r.Time)
	return s.write(p)
}

// RecordFleet writes a fleet and ledger snapshot.
func (s *InfluxSink) RecordFleet(r coremetrics.FleetRecord) error {
	p := write.NewPointWithMeasurement("fleet_snapshot").
		AddField("agents", r.Agents).
		AddField("available", r.Available).
		AddField("offline", r.Offline).
		AddField("faulted", r.Faulted).
		AddField("pending", r.Pending).
		AddField("completed", r.Completed).
		SetTime(r.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
