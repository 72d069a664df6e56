// Package fault classifies agent fault reports and returns faulted agents
// to service.
package fault

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/events"
	"github.com/adamsaleh11/DroneSystem/core/fleet"
	"github.com/adamsaleh11/DroneSystem/core/ledger"
	"github.com/adamsaleh11/DroneSystem/core/logger"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/core/monitoring"
	"github.com/adamsaleh11/DroneSystem/core/protocol"
	"github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
	"github.com/adamsaleh11/DroneSystem/internal/eventbus"
)

// Config holds fault recovery settings.
type Config struct {
	RecoveryDelayMS int `json:"recovery_delay_ms"`
}

func (c *Config) SetDefaults() {
	if c.RecoveryDelayMS == 0 {
		c.RecoveryDelayMS = 1000
	}
}

func (c Config) RecoveryDelay() time.Duration {
	return time.Duration(c.RecoveryDelayMS) * time.Millisecond
}

// Hook runs when a fault of a given kind is handled.
type Hook func(rep protocol.FaultReport)

// Handler records faults, re-queues the incident a faulted agent held and,
// after the recovery delay, clears the fault and sends the agent a reset.
// Handle must be called with the coordinator lock held; recovery callbacks
// take the same lock.
type Handler struct {
	cfg     Config
	fleet   *fleet.Registry
	ledger  *ledger.Ledger
	tr      transport.Transport
	clk     clock.Clock
	log     logger.Logger
	monitor monitoring.Monitor
	bus     eventbus.EventBus
	locker  sync.Locker
	hooks   map[Kind]Hook

	mu     sync.Mutex
	timers map[int]*clock.Timer
}

func NewHandler(cfg Config, reg *fleet.Registry, led *ledger.Ledger, tr transport.Transport,
	clk clock.Clock, locker sync.Locker, log logger.Logger) *Handler {
	cfg.SetDefaults()
	if locker == nil {
		locker = &sync.Mutex{}
	}
	h := &Handler{
		cfg:     cfg,
		fleet:   reg,
		ledger:  led,
		tr:      tr,
		clk:     clk,
		log:     logger.OrNop(log),
		monitor: monitoring.NopMonitor{},
		locker:  locker,
		timers:  make(map[int]*clock.Timer),
	}
	h.hooks = map[Kind]Hook{
		KindStuck: func(r protocol.FaultReport) {
			h.log.Warnf("agent %d stuck in flight", r.AgentID)
		},
		KindNozzle: func(r protocol.FaultReport) {
			h.log.Warnf("agent %d nozzle malfunction", r.AgentID)
		},
		KindPacketLoss: func(r protocol.FaultReport) {
			h.log.Warnf("agent %d lost its link", r.AgentID)
		},
		KindUnknown: func(r protocol.FaultReport) {
			h.log.Warnf("agent %d reported an unclassified fault %q, resetting anyway", r.AgentID, r.Description)
		},
	}
	return h
}

func (h *Handler) SetMonitor(m monitoring.Monitor) { h.monitor = monitoring.OrNop(m) }

func (h *Handler) SetBus(b eventbus.EventBus) { h.bus = b }

// SetHook replaces the action taken for faults of kind k.
func (h *Handler) SetHook(k Kind, fn Hook) {
	if fn != nil {
		h.hooks[k] = fn
	}
}

// Handle processes a fault report and schedules the agent's recovery. A
// second fault before recovery restarts the delay.
func (h *Handler) Handle(rep protocol.FaultReport) Kind {
	now := h.clk.Now()
	kind := Classify(rep.Description)
	text := rep.Text()

	held := h.fleet.SetFault(rep.AgentID, text, now)
	if held != nil {
		h.requeue(rep.AgentID, *held, now)
	}
	h.hooks[kind](rep)
	h.monitor.CaptureException(fmt.Errorf("agent %d fault: %s", rep.AgentID, rep.Description), map[string]string{
		"agent_id":   strconv.Itoa(rep.AgentID),
		"fault_kind": kind.String(),
	})
	h.publish(events.FaultEvent{AgentID: rep.AgentID, Kind: kind.String(), Text: text,
		Diagnosis: Diagnosis(kind), Incident: held, Time: now})
	h.schedule(rep.AgentID, kind)
	return kind
}

// Pending reports whether a recovery is scheduled for the agent.
func (h *Handler) Pending(agentID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.timers[agentID]
	return ok
}

// Stop cancels every scheduled recovery.
func (h *Handler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, t := range h.timers {
		t.Stop()
		delete(h.timers, id)
	}
}

func (h *Handler) requeue(agentID int, inc model.Incident, now time.Time) {
	if holder, ok := h.fleet.HolderOf(inc.ID); ok {
		h.log.Debugf("incident %s already reassigned to agent %d", inc.ID, holder)
		return
	}
	if h.ledger.Requeue(inc) {
		h.log.Infof("incident %s re-queued after agent %d fault", inc.ID, agentID)
		h.publish(events.IncidentEvent{Incident: inc, Action: events.IncidentRequeued,
			AgentID: agentID, Reason: "agent fault", Time: now})
	}
}

func (h *Handler) schedule(agentID int, kind Kind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.timers[agentID]; ok {
		t.Stop()
	}
	var timer *clock.Timer
	timer = h.clk.AfterFunc(h.cfg.RecoveryDelay(), func() {
		h.mu.Lock()
		current := h.timers[agentID] == timer
		if current {
			delete(h.timers, agentID)
		}
		h.mu.Unlock()
		if current {
			h.recover(agentID, kind)
		}
	})
	h.timers[agentID] = timer
}

func (h *Handler) recover(agentID int, kind Kind) {
	h.locker.Lock()
	defer h.locker.Unlock()
	h.fleet.ClearFault(agentID)
	if err := h.tr.Send(transport.AgentEndpoint(agentID), protocol.Reset{}.Encode()); err != nil {
		h.log.Errorf("reset agent %d: %v", agentID, err)
	}
	h.log.Infof("agent %d recovered from %s fault", agentID, kind)
	h.publish(events.FaultEvent{AgentID: agentID, Kind: kind.String(), Diagnosis: Diagnosis(kind),
		Recovered: true, Time: h.clk.Now()})
}

func (h *Handler) publish(ev eventbus.Event) {
	if h.bus != nil {
		h.bus.Publish(ev)
	}
}
