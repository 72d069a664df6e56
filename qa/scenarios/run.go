package scenarios

import (
	"fmt"
	"sort"
	"time"

	"github.com/adamsaleh11/DroneSystem/core/coordinator"
	"github.com/adamsaleh11/DroneSystem/core/model"
	"github.com/adamsaleh11/DroneSystem/core/protocol"
	"github.com/adamsaleh11/DroneSystem/core/zone"
	infratransport "github.com/adamsaleh11/DroneSystem/infra/transport"
	"github.com/adamsaleh11/DroneSystem/internal/clock"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// Result is the coordinator state observed after a scenario.
type Result struct {
	Assigned  map[string]int
	Completed []string
	Pending   []string
	Available []int
	Offline   []int
	Faulted   []int
}

// Run plays sc against a fresh coordinator with default settings.
func Run(sc *Scenario) (Result, error) {
	zones, err := zone.NewStatic(sc.Zones)
	if err != nil {
		return Result{}, err
	}
	tr := infratransport.NewMemory()
	clk := clock.NewFake(epoch)
	c := coordinator.New(coordinator.Config{}, zones, tr, clk, nil)
	defer c.Faults().Stop()

	incidents := make(map[string]model.Incident)
	for i, st := range sc.Steps {
		switch {
		case st.Heartbeat != nil:
			hb := st.Heartbeat
			state := model.StateIdle
			if hb.State != "" {
				var ok bool
				if state, ok = model.ParseAgentState(hb.State); !ok {
					return Result{}, fmt.Errorf("step %d: unknown state %q", i, hb.State)
				}
			}
			capacity := -1
			if hb.Capacity != nil {
				capacity = *hb.Capacity
			}
			c.Handle(protocol.Heartbeat{AgentID: hb.Agent, Position: model.Point{X: hb.X, Y: hb.Y},
				State: state, Capacity: capacity}.Encode())
		case st.Incident != nil:
			inc := st.Incident.ToModel(clk.Now())
			incidents[st.Incident.ID] = inc
			c.Handle(protocol.IncidentReport{Incident: inc}.Encode())
		case st.Complete != nil:
			inc, ok := incidents[st.Complete.Incident]
			if !ok {
				return Result{}, fmt.Errorf("step %d: unknown incident %q", i, st.Complete.Incident)
			}
			c.Handle(protocol.Complete{AgentID: st.Complete.Agent, Incident: inc}.Encode())
		case st.Reassign != nil:
			inc, ok := incidents[st.Reassign.Incident]
			if !ok {
				return Result{}, fmt.Errorf("step %d: unknown incident %q", i, st.Reassign.Incident)
			}
			c.Handle(protocol.Reassign{AgentID: st.Reassign.Agent, Incident: inc}.Encode())
		case st.Fault != nil:
			c.Handle(protocol.FaultReport{AgentID: st.Fault.Agent, Description: st.Fault.Description()}.Encode())
		case st.Tick:
			c.Tick()
		case st.AdvanceMS > 0:
			clk.Advance(time.Duration(st.AdvanceMS) * time.Millisecond)
		default:
			return Result{}, fmt.Errorf("step %d: empty step", i)
		}
	}
	return observe(c, tr), nil
}

func observe(c *coordinator.Coordinator, tr *infratransport.Memory) Result {
	res := Result{Assigned: make(map[string]int)}
	for _, d := range tr.Sent() {
		id, ok := d.To.AgentID()
		if !ok {
			continue
		}
		if msg, err := protocol.Decode(d.Payload); err == nil {
			if a, ok := msg.(protocol.Assign); ok {
				res.Assigned[string(a.Incident.ID)] = id
			}
		}
	}
	for _, inc := range c.Completed() {
		res.Completed = append(res.Completed, string(inc.ID))
	}
	for _, inc := range c.Pending() {
		res.Pending = append(res.Pending, string(inc.ID))
	}
	for id, st := range c.Fleet() {
		if st.Available {
			res.Available = append(res.Available, id)
		}
		switch st.State {
		case model.StateOffline:
			res.Offline = append(res.Offline, id)
		case model.StateFault:
			res.Faulted = append(res.Faulted, id)
		}
	}
	sort.Ints(res.Available)
	sort.Ints(res.Offline)
	sort.Ints(res.Faulted)
	return res
}

// Diff lists every mismatch between r and exp. Nil expectation lists are
// compared as empty.
func (r Result) Diff(exp Expected) []string {
	var out []string
	for inc, agent := range exp.Assigned {
		if got, ok := r.Assigned[inc]; !ok || got != agent {
			out = append(out, fmt.Sprintf("incident %s: want agent %d, got %d", inc, agent, got))
		}
	}
	out = appendMismatch(out, "completed", exp.Completed, r.Completed)
	out = appendMismatch(out, "pending", exp.Pending, r.Pending)
	out = appendMismatch(out, "available", exp.Available, r.Available)
	out = appendMismatch(out, "offline", exp.Offline, r.Offline)
	out = appendMismatch(out, "faulted", exp.Faulted, r.Faulted)
	return out
}

func appendMismatch[T comparable](out []string, name string, want, got []T) []string {
	if len(want) != len(got) {
		return append(out, fmt.Sprintf("%s: want %v, got %v", name, want, got))
	}
	for i := range want {
		if want[i] != got[i] {
			return append(out, fmt.Sprintf("%s: want %v, got %v", name, want, got))
		}
	}
	return out
}
