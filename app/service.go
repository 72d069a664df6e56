package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adamsaleh11/DroneSystem/api/monitor"
	"github.com/adamsaleh11/DroneSystem/config"
	"github.com/adamsaleh11/DroneSystem/core/coordinator"
	coreeventlog "github.com/adamsaleh11/DroneSystem/core/eventlog"
	coremetrics "github.com/adamsaleh11/DroneSystem/core/metrics"
	coremon "github.com/adamsaleh11/DroneSystem/core/monitoring"
	coretransport "github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/infra/eventlog"
	"github.com/adamsaleh11/DroneSystem/infra/logger"
	"github.com/adamsaleh11/DroneSystem/infra/metrics"
	"github.com/adamsaleh11/DroneSystem/infra/monitoring"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
	"github.com/adamsaleh11/DroneSystem/internal/eventbus"
)

// Service wires the coordinator to its transport, event bus, audit log,
// metrics sinks, error monitor and HTTP views.
type Service struct {
	Coordinator *coordinator.Coordinator

	cfg     *config.Config
	tr      coretransport.Transport
	clk     clock.Clock
	bus     *eventbus.Bus
	store   coreeventlog.Store
	sink    coremetrics.MetricsSink
	monitor coremon.Monitor
	log     logger.Logger

	wg sync.WaitGroup
}

// New creates a Service from the configuration using the configured
// transport and the real clock.
func New(cfg *config.Config) (*Service, error) {
	tr, err := NewTransport(cfg.Transport, logger.New("transport"))
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	svc, err := NewWithTransport(cfg, tr, clock.Real())
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	return svc, nil
}

// NewWithTransport creates a Service on an existing transport. The service
// owns tr and closes it in Close.
func NewWithTransport(cfg *config.Config, tr coretransport.Transport, clk clock.Clock) (*Service, error) {
	logg := logger.New("service")
	dir, err := LoadZones(cfg.Zones)
	if err != nil {
		return nil, err
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	store, err := coreeventlog.NewStore(cfg.EventLog)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry, "coordinator")
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("sentry: %w", err)
	}

	bus := eventbus.New()
	coord := coordinator.New(cfg.Coordinator, dir, tr, clk, logger.New("coordinator"))
	coord.SetBus(bus)
	coord.SetMonitor(mon)

	return &Service{
		Coordinator: coord,
		cfg:         cfg,
		tr:          tr,
		clk:         clk,
		bus:         bus,
		store:       store,
		sink:        sink,
		monitor:     mon,
		log:         logg,
	}, nil
}

// Bus exposes the service event bus.
func (s *Service) Bus() eventbus.EventBus { return s.bus }

// Store exposes the audit log.
func (s *Service) Store() coreeventlog.Store { return s.store }

// Run starts the coordinator and its observers and blocks until ctx is
// canceled. Only a listen failure is returned.
func (s *Service) Run(ctx context.Context) error {
	recorder := eventlog.NewRecorder(s.store, logger.New("eventlog"))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		recorder.Run(ctx, s.bus)
	}()
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	metrics.StartFleetSampler(ctx, s.clk, s.cfg.Metrics.FleetInterval(), s.fleetRecord, s.sink)

	if err := s.Coordinator.Start(ctx); err != nil {
		return err
	}
	if addr := s.cfg.Metrics.PromAddr; addr != "" {
		s.serve(ctx, "prom server", func(ctx context.Context) error {
			return metrics.StartPromServer(ctx, addr)
		})
	}
	if addr := s.cfg.Monitor.Addr; addr != "" {
		mux := monitor.NewMux(s.Coordinator, s.store, s.cfg.Monitor.Token)
		s.serve(ctx, "monitor server", func(ctx context.Context) error {
			return monitor.Serve(ctx, addr, mux)
		})
	}
	<-ctx.Done()
	s.Coordinator.Stop()
	return nil
}

func (s *Service) serve(ctx context.Context, name string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(ctx); err != nil {
			s.log.Errorf("%s: %v", name, err)
			s.monitor.CaptureException(err, map[string]string{"server": name})
		}
	}()
}

func (s *Service) fleetRecord() coremetrics.FleetRecord {
	st := s.Coordinator.Stats()
	return coremetrics.FleetRecord{
		Agents:    st.Agents,
		Available: st.Available,
		Offline:   st.Offline,
		Faulted:   st.Faulted,
		Pending:   st.Pending,
		Completed: st.Completed,
	}
}

// Close stops the coordinator and releases every resource held by the
// service. It is safe to call after Run returned.
func (s *Service) Close() error {
	s.Coordinator.Stop()
	s.bus.Close()
	s.wg.Wait()
	s.monitor.Flush(flushTimeout)
	return errors.Join(s.store.Close(), s.tr.Close())
}
