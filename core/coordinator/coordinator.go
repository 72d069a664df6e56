// Package coordinator receives incidents and agent traffic, runs the
// dispatch loop and exposes read-only views of fleet and ledger state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/adamsaleh11/DroneSystem/core/dispatch"
	"github.com/adamsaleh11/DroneSystem/core/events"
	"github.com/adamsaleh11/DroneSystem/core/fault"
	"github.com/adamsaleh11/DroneSystem/core/fleet"
	"github.com/adamsaleh11/DroneSystem/core/ledger"
	"github.com/adamsaleh11/DroneSystem/core/logger"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/core/monitoring"
	"github.com/adamsaleh11/DroneSystem/core/protocol"
	"github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/core/zone"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
	"github.com/adamsaleh11/DroneSystem/internal/eventbus"
)

// Coordinator owns the fleet registry and incident ledger. Every handler,
// dispatch tick and recovery callback runs under mu.
type Coordinator struct {
	cfg     Config
	tr      transport.Transport
	clk     clock.Clock
	log     logger.Logger
	bus     eventbus.EventBus
	monitor monitoring.Monitor

	mu     sync.Mutex
	fleet  *fleet.Registry
	ledger *ledger.Ledger
	engine *dispatch.Engine
	faults *fault.Handler

	firstIncident atomic.Pointer[timeValue]

	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	conns   []transport.Conn
}

func New(cfg Config, zones zone.Directory, tr transport.Transport, clk clock.Clock, log logger.Logger) *Coordinator {
	cfg.SetDefaults()
	if clk == nil {
		clk = clock.Real()
	}
	log = logger.OrNop(log)
	c := &Coordinator{
		cfg:     cfg,
		tr:      tr,
		clk:     clk,
		log:     log,
		monitor: monitoring.NopMonitor{},
		fleet:   fleet.NewRegistry(),
		ledger:  ledger.New(),
	}
	c.engine = dispatch.NewEngine(cfg.Dispatch, zones, c.fleet, c.ledger, tr, clk, log)
	c.engine.SetLocker(&c.mu)
	c.faults = fault.NewHandler(cfg.Fault, c.fleet, c.ledger, tr, clk, &c.mu, log)
	return c
}

// SetBus configures the event bus shared by the engine and fault handler.
func (c *Coordinator) SetBus(b eventbus.EventBus) {
	c.bus = b
	c.engine.SetBus(b)
	c.faults.SetBus(b)
}

// SetMonitor configures where faults and handler panics are reported.
func (c *Coordinator) SetMonitor(m monitoring.Monitor) {
	c.monitor = monitoring.OrNop(m)
	c.faults.SetMonitor(m)
}

// Faults exposes the fault handler so callers can install hooks.
func (c *Coordinator) Faults() *fault.Handler { return c.faults }

// Start binds both coordinator endpoints and launches the receivers and the
// dispatch loop. A bind failure is returned and nothing is left running.
func (c *Coordinator) Start(ctx context.Context) error {
	incidents, err := c.tr.Listen(transport.IncidentEndpoint)
	if err != nil {
		return fmt.Errorf("listen %s: %w", transport.IncidentEndpoint, err)
	}
	agents, err := c.tr.Listen(transport.AgentsEndpoint)
	if err != nil {
		_ = incidents.Close()
		return fmt.Errorf("listen %s: %w", transport.AgentsEndpoint, err)
	}
	c.conns = []transport.Conn{incidents, agents}
	c.stopped.Store(false)

	ctx, c.cancel = context.WithCancel(ctx)
	for _, conn := range c.conns {
		c.wg.Add(1)
		go c.receive(conn)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.engine.Run(ctx)
	}()
	c.log.Infof("coordinator listening on %s and %s", transport.IncidentEndpoint, transport.AgentsEndpoint)
	return nil
}

// Stop raises the stop flag, wakes both receivers with a STOP datagram and
// waits for every goroutine to return. Pending timers are cancelled.
func (c *Coordinator) Stop() {
	if c.cancel == nil || !c.stopped.CompareAndSwap(false, true) {
		return
	}
	for _, ep := range []transport.Endpoint{transport.IncidentEndpoint, transport.AgentsEndpoint} {
		if err := c.tr.Send(ep, protocol.Stop{}.Encode()); err != nil {
			c.log.Debugf("wake %s: %v", ep, err)
		}
	}
	c.cancel()
	c.wg.Wait()
	c.engine.Stop()
	c.faults.Stop()
	for _, conn := range c.conns {
		_ = conn.Close()
	}
	c.log.Infof("coordinator stopped")
}

func (c *Coordinator) receive(conn transport.Conn) {
	defer c.wg.Done()
	for !c.stopped.Load() {
		b, err := conn.Receive(c.cfg.ReceiveTimeout())
		switch {
		case errors.Is(err, transport.ErrTimeout):
			continue
		case errors.Is(err, transport.ErrClosed):
			return
		case err != nil:
			c.log.Errorf("receive on %s: %v", conn.Endpoint(), err)
			continue
		}
		if c.stopped.Load() {
			return
		}
		c.Handle(b)
	}
}

// Handle processes one datagram from either endpoint. Malformed input is
// logged and dropped.
func (c *Coordinator) Handle(b []byte) {
	msg, err := protocol.Decode(b)
	if err != nil {
		c.log.Warnf("dropping datagram %q: %v", truncate(b), err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.monitor.CaptureException(fmt.Errorf("panic handling %T: %v", msg, r), nil)
			c.log.Errorf("panic handling %T: %v", msg, r)
		}
	}()

	switch m := msg.(type) {
	case protocol.IncidentReport:
		c.onIncident(m.Incident)
	case protocol.Heartbeat:
		c.onHeartbeat(m)
	case protocol.Complete:
		c.onComplete(m)
	case protocol.Reassign:
		c.onReassign(m)
	case protocol.FaultReport:
		c.faults.Handle(m)
	case protocol.Stop:
	default:
		c.log.Debugf("ignoring %T", msg)
	}
}

// Tick runs one dispatch sweep immediately, under the coordinator lock.
func (c *Coordinator) Tick() dispatch.TickResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Tick(c.clk.Now())
}

func (c *Coordinator) onIncident(inc model.Incident) {
	now := c.clk.Now()
	if inc.ID == "" {
		inc.ID = model.NewIncidentID()
	}
	if inc.ReportedAt.IsZero() {
		inc.ReportedAt = now
	}
	if inc.ResourceNeeded <= 0 {
		inc.ResourceNeeded = model.DefaultResource(inc.Severity)
	}
	if _, held := c.fleet.HolderOf(inc.ID); held || !c.ledger.Enqueue(inc) {
		c.log.Debugf("duplicate incident %s suppressed", inc.ID)
		c.publish(events.IncidentEvent{Incident: inc, Action: events.IncidentDuplicate, Time: now})
		return
	}
	c.firstIncident.CompareAndSwap(nil, &timeValue{now})
	c.log.Infof("incident %s received: zone %d %s %s", inc.ID, inc.Zone, inc.EventType, inc.Severity)
	c.publish(events.IncidentEvent{Incident: inc, Action: events.IncidentReceived, Time: now})
}

func (c *Coordinator) onHeartbeat(m protocol.Heartbeat) {
	now := c.clk.Now()
	before, known := c.fleet.Get(m.AgentID)
	created := c.fleet.Upsert(m.AgentID, m.Position, m.State, m.Capacity, now)
	after, _ := c.fleet.Get(m.AgentID)
	switch {
	case created:
		c.log.Infof("agent %d discovered at %s", m.AgentID, m.Position)
		c.publish(events.AgentEvent{AgentID: m.AgentID, Action: events.AgentDiscovered, State: after.State, Time: now})
	case known && before.State == model.StateOffline && after.State != model.StateOffline:
		c.log.Infof("agent %d back online", m.AgentID)
		c.publish(events.AgentEvent{AgentID: m.AgentID, Action: events.AgentRevived, State: after.State, Time: now})
	}
}

func (c *Coordinator) onComplete(m protocol.Complete) {
	now := c.clk.Now()
	st, known := c.fleet.Get(m.AgentID)
	inc := m.Incident
	if inc.ID == "" {
		if !known || st.CurrentIncident == nil {
			c.log.Warnf("agent %d reported a completion without an incident", m.AgentID)
			return
		}
		inc.ID = st.CurrentIncident.ID
	}
	if known && st.CurrentIncident != nil && st.CurrentIncident.ID == inc.ID {
		inc = *st.CurrentIncident
	}
	c.fleet.Complete(m.AgentID, inc.ID)
	if holder, held := c.fleet.HolderOf(inc.ID); held {
		// The incident was re-queued and handed to another agent while the
		// reporter finished it. That agent is still flying, so it stays
		// unavailable until it reports IDLE.
		hs, _ := c.fleet.Get(holder)
		if released := c.fleet.Detach(holder, model.StateIdle, hs.ReportedState == model.StateIdle); released != nil {
			inc = *released
		}
		c.log.Infof("incident %s completed by agent %d, releasing agent %d", inc.ID, m.AgentID, holder)
	}
	if !c.ledger.Complete(inc, now) {
		c.log.Debugf("duplicate completion of incident %s by agent %d", inc.ID, m.AgentID)
		return
	}
	inc.CompletedAt = now
	c.log.Infof("incident %s completed by agent %d in %s", inc.ID, m.AgentID, inc.ResponseTime())
	c.publish(events.IncidentEvent{Incident: inc, Action: events.IncidentCompleted, AgentID: m.AgentID, Time: now})
}

func (c *Coordinator) onReassign(m protocol.Reassign) {
	now := c.clk.Now()
	inc := m.Incident
	if st, ok := c.fleet.Get(m.AgentID); ok && st.CurrentIncident != nil && st.CurrentIncident.ID == inc.ID {
		if held := c.fleet.Detach(m.AgentID, model.StateIdle, st.ReportedState == model.StateIdle); held != nil {
			inc = *held
		}
	}
	if holder, held := c.fleet.HolderOf(inc.ID); held {
		c.log.Debugf("incident %s handed back by agent %d is held by agent %d", inc.ID, m.AgentID, holder)
		return
	}
	if c.ledger.Requeue(inc) {
		c.log.Infof("agent %d handed back incident %s", m.AgentID, inc.ID)
		c.publish(events.IncidentEvent{Incident: inc, Action: events.IncidentRequeued,
			AgentID: m.AgentID, Reason: "handed back by agent", Time: now})
	}
}

func (c *Coordinator) publish(ev eventbus.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

func truncate(b []byte) string {
	const max = 80
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
