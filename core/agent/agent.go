// Package agent implements the agent side of the dispatch protocol: travel
// to an assigned target, drop, return to base and report completion, with a
// watchdog that injects faults when the agent is not periodically reset.
package agent

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/fault"
	"github.com/adamsaleh11/DroneSystem/core/logger"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/core/protocol"
	"github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
	"github.com/adamsaleh11/DroneSystem/internal/eventbus"
)

// Transition is published on every lifecycle change.
type Transition struct {
	AgentID int
	From    model.AgentState
	To      model.AgentState
	At      time.Time
}

// Status is a snapshot of the agent's own view.
type Status struct {
	State           model.AgentState
	Position        model.Point
	Capacity        int
	Incident        *model.Incident
	CountdownActive bool
	Countdown       int
}

// leg is a straight-line movement at constant speed.
type leg struct {
	from, to model.Point
	start    time.Time
	dur      time.Duration
}

func (l leg) at(now time.Time) model.Point {
	if l.dur <= 0 {
		return l.to
	}
	f := float64(now.Sub(l.start)) / float64(l.dur)
	if f >= 1 {
		return l.to
	}
	if f < 0 {
		f = 0
	}
	return model.Point{X: l.from.X + (l.to.X-l.from.X)*f, Y: l.from.Y + (l.to.Y-l.from.Y)*f}
}

// Agent is one simulated drone.
type Agent struct {
	cfg         Config
	tr          transport.Transport
	clk         clock.Clock
	log         logger.Logger
	transitions *eventbus.TypedBus[Transition]

	mu        sync.Mutex
	rnd       *rand.Rand
	state     model.AgentState
	pos       model.Point
	capacity  int
	incident  *model.Incident
	target    model.Point
	moving    *leg
	phase     *clock.Timer
	heartbeat *clock.Timer
	watchdog  *clock.Timer
	retry     *clock.Timer
	countdown int
	active    bool
	retries   int
	stopped   bool
}

func New(cfg Config, tr transport.Transport, clk clock.Clock, log logger.Logger) *Agent {
	cfg.SetDefaults()
	a := &Agent{
		cfg:         cfg,
		tr:          tr,
		clk:         clk,
		log:         logger.OrNop(log),
		transitions: eventbus.NewTyped[Transition](),
		rnd:         rand.New(rand.NewSource(cfg.Seed)),
		state:       model.StateIdle,
		pos:         cfg.Base,
		capacity:    cfg.Capacity,
		active:      true,
	}
	return a
}

func (a *Agent) ID() int { return a.cfg.ID }

// Transitions streams lifecycle changes.
func (a *Agent) Transitions() <-chan Transition { return a.transitions.Subscribe() }

// Status returns the agent's current view of itself.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := Status{
		State:           a.state,
		Position:        a.positionLocked(),
		Capacity:        a.capacity,
		CountdownActive: a.active,
		Countdown:       a.countdown,
	}
	if a.incident != nil {
		inc := *a.incident
		st.Incident = &inc
	}
	return st
}

// Start arms the watchdog and heartbeat timers and sends a first heartbeat.
func (a *Agent) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = false
	a.armCountdownLocked()
	if a.cfg.WatchdogMaxSeconds > 0 {
		a.watchdog = a.clk.AfterFunc(time.Second, a.watchdogTick)
	}
	a.sendHeartbeatLocked()
	a.heartbeat = a.clk.AfterFunc(ms(a.cfg.HeartbeatIntervalMS), a.heartbeatTick)
}

// Stop cancels every timer.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for _, t := range []*clock.Timer{a.phase, a.heartbeat, a.watchdog, a.retry} {
		if t != nil {
			t.Stop()
		}
	}
	a.transitions.Close()
}

// Run listens on the agent's endpoint and processes datagrams until ctx is
// done or a STOP arrives.
func (a *Agent) Run(ctx context.Context) error {
	conn, err := a.tr.Listen(transport.AgentEndpoint(a.cfg.ID))
	if err != nil {
		return err
	}
	defer conn.Close()
	a.Start()
	defer a.Stop()
	for ctx.Err() == nil {
		b, err := conn.Receive(ms(a.cfg.ReceiveTimeoutMS))
		switch {
		case errors.Is(err, transport.ErrTimeout):
			continue
		case errors.Is(err, transport.ErrClosed):
			return nil
		case err != nil:
			a.log.Errorf("agent %d receive: %v", a.cfg.ID, err)
			continue
		}
		if !a.Handle(b) {
			return nil
		}
	}
	return nil
}

// Handle processes one datagram. It returns false for STOP.
func (a *Agent) Handle(b []byte) bool {
	msg, err := protocol.Decode(b)
	if err != nil {
		a.log.Warnf("agent %d: %v", a.cfg.ID, err)
		return true
	}
	switch m := msg.(type) {
	case protocol.Assign:
		a.onAssign(m)
	case protocol.Reset:
		a.onReset()
	case protocol.Stop:
		return false
	default:
		a.log.Debugf("agent %d ignoring %T", a.cfg.ID, msg)
	}
	return true
}

// InjectFault forces a fault of the given kind as if the watchdog expired.
func (a *Agent) InjectFault(k fault.Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.faultLocked(k)
}

// ForceOffline drops the agent off the network until it is reset.
func (a *Agent) ForceOffline() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelPhaseLocked()
	a.incident = nil
	a.active = false
	a.setStateLocked(model.StateOffline)
}

func (a *Agent) onAssign(m protocol.Assign) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case model.StateIdle:
		if a.capacity < m.Incident.ResourceNeeded {
			a.log.Infof("agent %d declines incident %s: capacity %d < %d", a.cfg.ID, m.Incident.ID, a.capacity, m.Incident.ResourceNeeded)
			a.sendLocked(protocol.Reassign{AgentID: a.cfg.ID, Incident: m.Incident})
			return
		}
		inc := m.Incident
		a.incident = &inc
		a.target = m.Target
		a.setStateLocked(model.StateEnRoute)
		a.flyLocked(m.Target, a.arrive)
	case model.StateEnRoute:
		inc := m.Incident
		a.log.Infof("agent %d rerouted to incident %s at %s", a.cfg.ID, inc.ID, m.Target)
		a.incident = &inc
		a.target = m.Target
		a.flyLocked(m.Target, a.arrive)
	default:
		a.sendLocked(protocol.Reassign{AgentID: a.cfg.ID, Incident: m.Incident})
	}
}

func (a *Agent) onReset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armCountdownLocked()
	a.retries = 0
	if a.retry != nil {
		a.retry.Stop()
		a.retry = nil
	}
	if a.state == model.StateFault || a.state == model.StateOffline {
		a.pos = a.positionLocked()
		a.moving = nil
		a.setStateLocked(model.StateIdle)
		a.sendHeartbeatLocked()
	}
}

// arrive, dropped and returned are the phase steps of one mission.
func (a *Agent) arrive() {
	a.pos = a.target
	a.moving = nil
	a.setStateLocked(model.StateDropping)
	a.phase = a.clk.AfterFunc(ms(a.cfg.DropDurationMS), func() { a.step(a.dropped) })
}

func (a *Agent) dropped() {
	if a.incident != nil {
		a.capacity -= a.incident.ResourceNeeded
		if a.capacity < 0 {
			a.capacity = 0
		}
	}
	a.setStateLocked(model.StateReturning)
	a.flyLocked(a.cfg.Base, a.returned)
}

func (a *Agent) returned() {
	a.pos = a.cfg.Base
	a.moving = nil
	a.capacity = a.cfg.Capacity
	done := a.incident
	a.incident = nil
	a.setStateLocked(model.StateIdle)
	if done != nil {
		a.sendLocked(protocol.Complete{AgentID: a.cfg.ID, Incident: *done})
	}
	a.sendHeartbeatLocked()
}

// flyLocked starts a leg from the current position and runs next on arrival.
func (a *Agent) flyLocked(to model.Point, next func()) {
	a.cancelPhaseLocked()
	from := a.positionLocked()
	dur := time.Duration(model.Distance(from, to) / a.cfg.Speed * float64(time.Second))
	if dur < time.Millisecond {
		dur = time.Millisecond
	}
	a.pos = from
	a.moving = &leg{from: from, to: to, start: a.clk.Now(), dur: dur}
	a.phase = a.clk.AfterFunc(dur, func() { a.step(next) })
}

// step runs the next phase unless the mission was cut short by a fault,
// going offline or Stop.
func (a *Agent) step(next func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || !a.active || !a.state.InFlight() {
		return
	}
	next()
}

func (a *Agent) faultLocked(k fault.Kind) {
	if a.state == model.StateFault || a.state == model.StateOffline {
		return
	}
	a.pos = a.positionLocked()
	a.cancelPhaseLocked()
	a.moving = nil
	a.incident = nil
	a.active = false
	a.setStateLocked(model.StateFault)
	a.sendLocked(protocol.FaultReport{AgentID: a.cfg.ID, Description: fault.Description(k)})
	a.retries = 0
	a.awaitResetLocked()
}

// awaitResetLocked re-checks the countdown flag every retry interval. After
// MaxRetries inactive checks the agent goes OFFLINE.
func (a *Agent) awaitResetLocked() {
	a.retry = a.clk.AfterFunc(ms(a.cfg.RetryIntervalMS), func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.stopped || a.active || a.state != model.StateFault {
			return
		}
		a.retries++
		if a.retries >= a.cfg.MaxRetries {
			a.log.Warnf("agent %d: no reset after fault, going offline", a.cfg.ID)
			a.setStateLocked(model.StateOffline)
			return
		}
		a.awaitResetLocked()
	})
}

func (a *Agent) watchdogTick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.active {
		a.countdown--
		if a.countdown <= 0 {
			a.active = false
			a.faultLocked(faultForState(a.state))
		}
	}
	a.watchdog = a.clk.AfterFunc(time.Second, a.watchdogTick)
}

func (a *Agent) heartbeatTick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.sendHeartbeatLocked()
	a.heartbeat = a.clk.AfterFunc(ms(a.cfg.HeartbeatIntervalMS), a.heartbeatTick)
}

func (a *Agent) sendHeartbeatLocked() {
	if !a.active || a.state == model.StateOffline {
		return
	}
	a.sendLocked(protocol.Heartbeat{AgentID: a.cfg.ID, Position: a.positionLocked(), State: a.state, Capacity: a.capacity})
}

func (a *Agent) armCountdownLocked() {
	a.active = true
	if a.cfg.WatchdogMaxSeconds <= 0 {
		return
	}
	span := a.cfg.WatchdogMaxSeconds - a.cfg.WatchdogMinSeconds
	if span <= 0 {
		a.countdown = a.cfg.WatchdogMaxSeconds
		return
	}
	a.countdown = a.cfg.WatchdogMinSeconds + a.rnd.Intn(span)
}

func (a *Agent) positionLocked() model.Point {
	if a.moving != nil {
		return a.moving.at(a.clk.Now())
	}
	return a.pos
}

func (a *Agent) cancelPhaseLocked() {
	if a.phase != nil {
		a.phase.Stop()
		a.phase = nil
	}
}

func (a *Agent) setStateLocked(s model.AgentState) {
	if a.state == s {
		return
	}
	tr := Transition{AgentID: a.cfg.ID, From: a.state, To: s, At: a.clk.Now()}
	a.state = s
	a.log.Debugf("agent %d %s -> %s", a.cfg.ID, tr.From, tr.To)
	a.transitions.Publish(tr)
}

func (a *Agent) sendLocked(m protocol.Message) {
	ep := transport.AgentsEndpoint
	if _, ok := m.(protocol.IncidentReport); ok {
		ep = transport.IncidentEndpoint
	}
	if err := a.tr.Send(ep, m.Encode()); err != nil {
		a.log.Warnf("agent %d send: %v", a.cfg.ID, err)
	}
}

// faultForState picks the fault a stalled agent reports in state s.
func faultForState(s model.AgentState) fault.Kind {
	switch s {
	case model.StateDropping:
		return fault.KindNozzle
	case model.StateEnRoute, model.StateReturning:
		return fault.KindStuck
	default:
		return fault.KindPacketLoss
	}
}
