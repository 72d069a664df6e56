// Package dispatch matches pending incidents to agents.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/events"
	"github.com/adamsaleh11/DroneSystem/core/fleet"
	"github.com/adamsaleh11/DroneSystem/core/ledger"
	"github.com/adamsaleh11/DroneSystem/core/logger"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/core/protocol"
	"github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/core/zone"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
	"github.com/adamsaleh11/DroneSystem/internal/eventbus"
)

var (
	// ErrUnknownZone means the incident cannot be targeted and is dropped.
	ErrUnknownZone = errors.New("dispatch: unknown zone")
	// ErrNoCandidate means no agent qualifies right now; retry later.
	ErrNoCandidate = errors.New("dispatch: no candidate agent")
)

// Decision is the outcome of candidate selection.
type Decision struct {
	AgentID  int
	Reroute  bool
	Distance float64
	Target   model.Point
}

func (d Decision) mode() string {
	if d.Reroute {
		return "reroute"
	}
	return "idle"
}

// TickResult summarizes one sweep of the dispatch loop.
type TickResult struct {
	Offline   []int
	Orphaned  []fleet.Orphan
	Reclaimed []fleet.Orphan
	Assigned  []Decision
	Deferred  int
	Dropped   int
}

// Engine assigns incidents from the ledger to agents in the registry. It
// does not lock on its own: callers serialize Dispatch and Tick with the
// locker passed to SetLocker, which is also taken by cooldown callbacks.
type Engine struct {
	cfg    Config
	zones  zone.Directory
	fleet  *fleet.Registry
	ledger *ledger.Ledger
	tr     transport.Transport
	clk    clock.Clock
	log    logger.Logger
	bus    eventbus.EventBus
	locker sync.Locker

	cmu       sync.Mutex
	cooldowns map[int]*clock.Timer
}

func NewEngine(cfg Config, zones zone.Directory, reg *fleet.Registry, led *ledger.Ledger,
	tr transport.Transport, clk clock.Clock, log logger.Logger) *Engine {
	cfg.SetDefaults()
	return &Engine{
		cfg:       cfg,
		zones:     zones,
		fleet:     reg,
		ledger:    led,
		tr:        tr,
		clk:       clk,
		log:       logger.OrNop(log),
		locker:    nopLocker{},
		cooldowns: make(map[int]*clock.Timer),
	}
}

// SetBus configures the event bus used to publish dispatch events.
func (e *Engine) SetBus(b eventbus.EventBus) { e.bus = b }

// SetLocker sets the lock shared with the coordinator.
func (e *Engine) SetLocker(l sync.Locker) {
	if l != nil {
		e.locker = l
	}
}

// Select picks the agent for inc without mutating anything. Idle agents are
// preferred; when none is within the reroute threshold an EN_ROUTE agent may
// be redirected if the new target is less than half its remaining trip and
// the new incident is at least as severe. Ties go to the lowest id.
func (e *Engine) Select(inc model.Incident, target model.Point) (Decision, bool) {
	best := Decision{Target: target, Distance: math.Inf(1)}
	found := false
	e.fleet.ForEachAvailableIdle(func(a model.AgentStatus) {
		if !a.CanCarry(inc.ResourceNeeded) {
			return
		}
		if d := model.Distance(a.Position, target); d < best.Distance {
			best.AgentID, best.Distance, found = a.ID, d, true
		}
	})
	if found && best.Distance <= e.cfg.RerouteThreshold {
		return best, true
	}
	rank := inc.Severity.Rank()
	e.fleet.ForEachEnRouteAssignable(func(a model.AgentStatus) {
		if !a.CanCarry(inc.ResourceNeeded) {
			return
		}
		toNew := model.Distance(a.Position, target)
		toOriginal := model.Distance(a.Position, a.Target)
		if toNew < 0.5*toOriginal && rank >= a.CurrentIncident.Severity.Rank() && toNew < best.Distance {
			best = Decision{AgentID: a.ID, Reroute: true, Distance: toNew, Target: target}
			found = true
		}
	})
	return best, found
}

// Dispatch resolves the incident's zone, selects an agent, claims it and
// sends the assignment. A failed send is rolled back and returned so the
// caller can re-queue the incident.
func (e *Engine) Dispatch(inc model.Incident) (Decision, error) {
	z, ok := e.zones.Lookup(inc.Zone)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %d", ErrUnknownZone, inc.Zone)
	}
	target := z.Center()
	dec, ok := e.Select(inc, target)
	if !ok {
		return Decision{}, ErrNoCandidate
	}

	prev, _ := e.fleet.Get(dec.AgentID)
	now := e.clk.Now()
	displaced, err := e.fleet.Claim(dec.AgentID, inc, target, now, dec.Reroute)
	if err != nil {
		return dec, fmt.Errorf("claim agent %d: %w", dec.AgentID, err)
	}

	payload := protocol.Assign{Target: target, Incident: inc}.Encode()
	if err := e.tr.Send(transport.AgentEndpoint(dec.AgentID), payload); err != nil {
		e.fleet.Rollback(prev, inc.ID)
		assignSendFailures.Inc()
		err = fmt.Errorf("send assign to agent %d: %w", dec.AgentID, err)
		e.log.Warnf("incident %s: %v", inc.ID, err)
		e.publish(events.AssignmentEvent{AgentID: dec.AgentID, Incident: inc, Target: target,
			Distance: dec.Distance, Reroute: dec.Reroute, Err: err, Time: now})
		return dec, err
	}

	if dec.Reroute && displaced != nil {
		e.ledger.Requeue(*displaced)
		e.fleet.SetRerouted(dec.AgentID, true)
		e.startCooldown(dec.AgentID)
		incidentsRerouted.Inc()
		e.log.Infof("agent %d rerouted from incident %s to %s", dec.AgentID, displaced.ID, inc.ID)
		e.publish(events.IncidentEvent{Incident: *displaced, Action: events.IncidentRequeued,
			AgentID: dec.AgentID, Reason: "rerouted", Time: now})
	}
	incidentsDispatched.WithLabelValues(dec.mode()).Inc()
	dispatchDistance.Observe(dec.Distance)
	e.log.Debugw("incident assigned", map[string]any{
		"incident": string(inc.ID),
		"agent":    dec.AgentID,
		"zone":     inc.Zone,
		"distance": dec.Distance,
		"reroute":  dec.Reroute,
	})
	e.publish(events.AssignmentEvent{AgentID: dec.AgentID, Incident: inc, Target: target,
		Distance: dec.Distance, Reroute: dec.Reroute, Displaced: displaced, Time: now})
	return dec, nil
}

// Tick runs one sweep: stale agents go OFFLINE, assignments of agents that
// keep reporting IDLE are reclaimed and then every pending incident is attempted once. Incidents
// that cannot be assigned return to the tail of the queue in order.
func (e *Engine) Tick(now time.Time) TickResult {
	var res TickResult
	res.Offline, res.Orphaned = e.fleet.MarkStale(now, e.cfg.StaleTimeout())
	for _, id := range res.Offline {
		e.log.Warnf("agent %d silent for more than %s, marked offline", id, e.cfg.StaleTimeout())
		e.publish(events.AgentEvent{AgentID: id, Action: events.AgentOffline, State: model.StateOffline, Time: now})
	}
	for _, o := range res.Orphaned {
		e.requeueOrphan(o, "agent offline", now)
	}
	res.Reclaimed = e.fleet.Reclaim(now, e.cfg.AckTimeout())
	for _, o := range res.Reclaimed {
		if o.Finished {
			e.completeOrphan(o, now)
			continue
		}
		e.requeueOrphan(o, "assignment not acknowledged", now)
	}

	for _, inc := range e.ledger.Drain() {
		dec, err := e.Dispatch(inc)
		switch {
		case err == nil:
			res.Assigned = append(res.Assigned, dec)
		case errors.Is(err, ErrUnknownZone):
			res.Dropped++
			e.log.Warnf("dropping incident %s: %v", inc.ID, err)
			e.publish(events.IncidentEvent{Incident: inc, Action: events.IncidentDropped, Reason: err.Error(), Time: now})
		default:
			res.Deferred++
			e.ledger.Requeue(inc)
		}
	}
	pendingIncidents.Set(float64(e.ledger.Len()))
	offlineAgents.Set(float64(e.fleet.CountState(model.StateOffline)))
	return res
}

// Run calls Tick on every interval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	t := e.clk.NewTicker(e.cfg.TickInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.locker.Lock()
			e.Tick(e.clk.Now())
			e.locker.Unlock()
		}
	}
}

// Stop cancels pending cooldown timers.
func (e *Engine) Stop() {
	e.cmu.Lock()
	defer e.cmu.Unlock()
	for id, t := range e.cooldowns {
		t.Stop()
		delete(e.cooldowns, id)
	}
}

func (e *Engine) requeueOrphan(o fleet.Orphan, reason string, now time.Time) {
	if holder, held := e.fleet.HolderOf(o.Incident.ID); held {
		e.log.Debugf("incident %s already held by agent %d", o.Incident.ID, holder)
		return
	}
	if e.ledger.Requeue(o.Incident) {
		e.log.Infof("incident %s re-queued from agent %d: %s", o.Incident.ID, o.AgentID, reason)
		e.publish(events.IncidentEvent{Incident: o.Incident, Action: events.IncidentRequeued,
			AgentID: o.AgentID, Reason: reason, Time: now})
	}
}

// completeOrphan records an incident whose agent returned to base without
// its Complete reaching the coordinator.
func (e *Engine) completeOrphan(o fleet.Orphan, now time.Time) {
	if !e.ledger.Complete(o.Incident, now) {
		return
	}
	inc := o.Incident
	inc.CompletedAt = now
	e.log.Warnf("incident %s completed by agent %d without a completion report", inc.ID, o.AgentID)
	e.publish(events.IncidentEvent{Incident: inc, Action: events.IncidentCompleted,
		AgentID: o.AgentID, Reason: "completion inferred from heartbeats", Time: now})
}

// startCooldown keeps a rerouted agent from being rerouted again until the
// cooldown elapses. A new reroute restarts the timer.
func (e *Engine) startCooldown(id int) {
	e.cmu.Lock()
	defer e.cmu.Unlock()
	if t, ok := e.cooldowns[id]; ok {
		t.Stop()
	}
	var timer *clock.Timer
	timer = e.clk.AfterFunc(e.cfg.Cooldown(), func() {
		e.locker.Lock()
		e.fleet.SetRerouted(id, false)
		e.locker.Unlock()
		e.cmu.Lock()
		if e.cooldowns[id] == timer {
			delete(e.cooldowns, id)
		}
		e.cmu.Unlock()
	})
	e.cooldowns[id] = timer
}

func (e *Engine) publish(ev eventbus.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}
