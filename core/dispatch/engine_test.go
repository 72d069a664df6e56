package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamsaleh11/DroneSystem/core/events"
	"github.com/adamsaleh11/DroneSystem/core/fleet"
	"github.com/adamsaleh11/DroneSystem/core/ledger"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/core/protocol"
	"github.com/adamsaleh11/DroneSystem/core/transport"
	"github.com/adamsaleh11/DroneSystem/core/zone"
	infratransport "github.com/adamsaleh11/DroneSystem/infra/transport"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
	"github.com/adamsaleh11/DroneSystem/internal/eventbus"
)

var start = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine *Engine
	fleet  *fleet.Registry
	ledger *ledger.Ledger
	tr     *infratransport.Memory
	clk    *clock.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ResetMetrics(nil)
	zones, err := zone.NewStatic([]model.Zone{
		{ID: 1, Min: model.Point{X: 0, Y: 0}, Max: model.Point{X: 100, Y: 100}},
		{ID: 2, Min: model.Point{X: 0, Y: 400}, Max: model.Point{X: 200, Y: 500}},
	})
	require.NoError(t, err)
	h := &harness{
		fleet:  fleet.NewRegistry(),
		ledger: ledger.New(),
		tr:     infratransport.NewMemory(),
		clk:    clock.NewFake(start),
	}
	h.engine = NewEngine(Config{}, zones, h.fleet, h.ledger, h.tr, h.clk, nil)
	return h
}

func (h *harness) idle(id int, x, y float64) {
	h.fleet.Upsert(id, model.Point{X: x, Y: y}, model.StateIdle, -1, h.clk.Now())
}

func (h *harness) lastAssign(t *testing.T, id int) protocol.Assign {
	t.Helper()
	sent := h.tr.SentTo(transport.AgentEndpoint(id))
	require.NotEmpty(t, sent, "no datagram sent to agent %d", id)
	msg, err := protocol.Decode(sent[len(sent)-1])
	require.NoError(t, err)
	a, ok := msg.(protocol.Assign)
	require.True(t, ok, "expected Assign, got %T", msg)
	return a
}

func fire(zoneID int, sev model.Severity) model.Incident {
	return model.NewIncident(zoneID, "FIRE_DETECTED", sev, 0, start)
}

func TestDispatchSingleIdleAgent(t *testing.T) {
	h := newHarness(t)
	h.idle(1, 0, 0)
	inc := fire(1, model.SeverityLow)

	dec, err := h.engine.Dispatch(inc)
	require.NoError(t, err)
	assert.Equal(t, 1, dec.AgentID)
	assert.False(t, dec.Reroute)

	a := h.lastAssign(t, 1)
	assert.Equal(t, model.Point{X: 50, Y: 50}, a.Target)
	assert.Equal(t, inc.ID, a.Incident.ID)

	st, _ := h.fleet.Get(1)
	assert.Equal(t, model.StateEnRoute, st.State)
	assert.False(t, st.Available)
	assert.Equal(t, inc.ID, st.CurrentIncident.ID)
}

func TestSelectTieBreaksByLowestID(t *testing.T) {
	h := newHarness(t)
	h.idle(7, 100, 50)
	h.idle(3, 0, 50)
	dec, ok := h.engine.Select(fire(1, model.SeverityLow), model.Point{X: 50, Y: 50})
	require.True(t, ok)
	assert.Equal(t, 3, dec.AgentID)
}

func setupReroute(t *testing.T, h *harness, current model.Severity) model.Incident {
	t.Helper()
	h.idle(1, 350, 50)
	h.idle(2, 100, 50)
	original := fire(2, current)
	_, err := h.fleet.Claim(2, original, model.Point{X: 100, Y: 450}, start, false)
	require.NoError(t, err)
	return original
}

func TestRerouteBeatsDistantIdleAgent(t *testing.T) {
	h := newHarness(t)
	original := setupReroute(t, h, model.SeverityLow)
	inc := fire(1, model.SeverityModerate)

	dec, err := h.engine.Dispatch(inc)
	require.NoError(t, err)
	assert.Equal(t, 2, dec.AgentID)
	assert.True(t, dec.Reroute)
	assert.InDelta(t, 50, dec.Distance, 1e-9)

	assert.True(t, h.ledger.IsPending(original.ID), "displaced incident returns to the queue")
	st, _ := h.fleet.Get(2)
	assert.Equal(t, inc.ID, st.CurrentIncident.ID)
	assert.True(t, st.RecentlyRerouted)
	assert.Equal(t, model.Point{X: 50, Y: 50}, h.lastAssign(t, 2).Target)

	h.clk.Advance(59 * time.Second)
	st, _ = h.fleet.Get(2)
	assert.True(t, st.RecentlyRerouted)
	h.clk.Advance(time.Second)
	st, _ = h.fleet.Get(2)
	assert.False(t, st.RecentlyRerouted, "cooldown clears the flag")
}

func TestNoRerouteForLowerSeverity(t *testing.T) {
	h := newHarness(t)
	setupReroute(t, h, model.SeverityHigh)
	dec, err := h.engine.Dispatch(fire(1, model.SeverityLow))
	require.NoError(t, err)
	assert.Equal(t, 1, dec.AgentID, "falls back to the distant idle agent")
	assert.False(t, dec.Reroute)
}

func TestRecentlyReroutedAgentIsSkipped(t *testing.T) {
	h := newHarness(t)
	setupReroute(t, h, model.SeverityLow)
	h.fleet.SetRerouted(2, true)
	dec, ok := h.engine.Select(fire(1, model.SeverityHigh), model.Point{X: 50, Y: 50})
	require.True(t, ok)
	assert.Equal(t, 1, dec.AgentID)
}

func TestSendFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.idle(1, 0, 0)
	h.tr.FailSends(transport.AgentEndpoint(1), true)
	inc := fire(1, model.SeverityLow)
	h.ledger.Enqueue(inc)

	res := h.engine.Tick(start)
	assert.Equal(t, 1, res.Deferred)
	assert.Empty(t, res.Assigned)

	st, _ := h.fleet.Get(1)
	assert.True(t, st.Available)
	assert.Nil(t, st.CurrentIncident)
	assert.Equal(t, model.StateIdle, st.State)
	assert.True(t, h.ledger.IsPending(inc.ID))

	h.tr.FailSends(transport.AgentEndpoint(1), false)
	res = h.engine.Tick(start.Add(time.Second))
	require.Len(t, res.Assigned, 1)
	assert.False(t, h.ledger.IsPending(inc.ID))
}

func TestUnknownZoneIsDropped(t *testing.T) {
	h := newHarness(t)
	h.idle(1, 0, 0)
	bus := eventbus.New()
	sub := bus.Subscribe()
	h.engine.SetBus(bus)
	h.ledger.Enqueue(fire(99, model.SeverityHigh))

	res := h.engine.Tick(start)
	assert.Equal(t, 1, res.Dropped)
	assert.Zero(t, h.ledger.Len())

	ev := <-sub
	ie, ok := ev.(events.IncidentEvent)
	require.True(t, ok)
	assert.Equal(t, events.IncidentDropped, ie.Action)
}

func TestTickDrainsAllAndKeepsOrder(t *testing.T) {
	h := newHarness(t)
	h.idle(1, 0, 0)
	a, b, c := fire(1, model.SeverityLow), fire(1, model.SeverityLow), fire(1, model.SeverityLow)
	h.ledger.Enqueue(a)
	h.ledger.Enqueue(b)
	h.ledger.Enqueue(c)

	res := h.engine.Tick(start)
	require.Len(t, res.Assigned, 1)
	assert.Equal(t, 2, res.Deferred)
	p := h.ledger.Pending()
	require.Len(t, p, 2)
	assert.Equal(t, b.ID, p[0].ID)
	assert.Equal(t, c.ID, p[1].ID)
}

func TestStaleAgentNeverSelected(t *testing.T) {
	h := newHarness(t)
	h.idle(1, 0, 0)
	h.clk.Advance(31 * time.Second)
	h.idle(2, 1000, 1000)

	h.ledger.Enqueue(fire(1, model.SeverityLow))
	res := h.engine.Tick(h.clk.Now())
	assert.Equal(t, []int{1}, res.Offline)
	require.Len(t, res.Assigned, 1)
	assert.Equal(t, 2, res.Assigned[0].AgentID)
	st, _ := h.fleet.Get(1)
	assert.Equal(t, model.StateOffline, st.State)
}

func TestOfflineAgentIncidentRequeued(t *testing.T) {
	h := newHarness(t)
	h.idle(1, 0, 0)
	inc := fire(1, model.SeverityLow)
	_, err := h.engine.Dispatch(inc)
	require.NoError(t, err)

	h.clk.Advance(31 * time.Second)
	res := h.engine.Tick(h.clk.Now())
	require.Len(t, res.Orphaned, 1)
	assert.True(t, h.ledger.IsPending(inc.ID))
}

func TestCapacityTooLowIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.fleet.Upsert(1, model.Point{X: 50, Y: 50}, model.StateIdle, 5, start)
	h.idle(2, 0, 0)
	dec, err := h.engine.Dispatch(fire(1, model.SeverityLow))
	require.NoError(t, err)
	assert.Equal(t, 2, dec.AgentID)
}

func TestLostAssignmentReclaimed(t *testing.T) {
	h := newHarness(t)
	h.idle(1, 0, 0)
	inc := fire(1, model.SeverityLow)
	_, err := h.engine.Dispatch(inc)
	require.NoError(t, err)

	// the Assign never arrived: the agent keeps reporting IDLE
	h.clk.Advance(6 * time.Second)
	h.idle(1, 0, 0)
	res := h.engine.Tick(h.clk.Now())
	require.Len(t, res.Reclaimed, 1)
	require.Len(t, res.Assigned, 1, "reclaimed incident is dispatched again in the same tick")
	assert.Equal(t, 1, res.Assigned[0].AgentID)
	assert.Len(t, h.tr.SentTo(transport.AgentEndpoint(1)), 2)
}

func TestLostCompletionInferred(t *testing.T) {
	h := newHarness(t)
	h.idle(1, 0, 0)
	inc := fire(1, model.SeverityLow)
	_, err := h.engine.Dispatch(inc)
	require.NoError(t, err)

	for _, s := range []model.AgentState{model.StateEnRoute, model.StateDropping, model.StateReturning} {
		h.clk.Advance(time.Second)
		h.fleet.Upsert(1, model.Point{}, s, -1, h.clk.Now())
	}
	h.clk.Advance(time.Second)
	h.idle(1, 0, 0)
	h.clk.Advance(6 * time.Second)
	h.idle(1, 0, 0)

	res := h.engine.Tick(h.clk.Now())
	require.Len(t, res.Reclaimed, 1)
	assert.True(t, res.Reclaimed[0].Finished)
	assert.Empty(t, res.Assigned, "a finished incident is not dispatched again")
	assert.True(t, h.ledger.IsCompleted(inc.ID))
	assert.False(t, h.ledger.IsPending(inc.ID))
	st, _ := h.fleet.Get(1)
	assert.True(t, st.Available)
}

func TestRunTicksWithClock(t *testing.T) {
	h := newHarness(t)
	h.idle(1, 0, 0)
	h.ledger.Enqueue(fire(1, model.SeverityLow))
	var mu sync.Mutex
	h.engine.SetLocker(&mu)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.engine.Run(ctx)
		close(done)
	}()
	h.clk.WaitForTimers(1)
	h.clk.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return len(h.tr.SentTo(transport.AgentEndpoint(1))) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
